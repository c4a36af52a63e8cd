/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"

	"github.com/certsocietegenerale/fame/pkg/worker"
)

func main() {
	s, err := worker.NewServer()
	if err != nil {
		fmt.Println("failed to new worker")
		return
	}
	s.Start()
}
