// Copyright (C) The PascalX Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/cmatKhan/PascalX"

func main() {
	pascalx.Main()
}
