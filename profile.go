// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package pascalx

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	log "github.com/sirupsen/logrus"
)

// writeProfilesPeriodically saves heap and CPU profiles to outdir
// every interval until stop is closed. Files are renamed into place so
// a reader never sees a partial profile.
func writeProfilesPeriodically(outdir string, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			writeProfile(outdir, "mem.prof", func(f *os.File) error {
				runtime.GC()
				return pprof.WriteHeapProfile(f)
			})
			writeProfile(outdir, "cpu.prof", func(f *os.File) error {
				if err := pprof.StartCPUProfile(f); err != nil {
					return err
				}
				time.Sleep(time.Second)
				pprof.StopCPUProfile()
				return nil
			})
		}
	}
}

func writeProfile(outdir, name string, write func(*os.File) error) {
	tmp := filepath.Join(outdir, name+"~")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		log.Print(err)
		return
	}
	defer f.Close()
	if err := write(f); err != nil {
		log.Print(err)
		return
	}
	if err := f.Close(); err != nil {
		log.Print(err)
		return
	}
	if err := os.Rename(tmp, filepath.Join(outdir, name)); err != nil {
		log.Print(err)
	}
}
