/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"

	"github.com/certsocietegenerale/fame/pkg/agent"
)

func main() {
	s, err := agent.NewServer()
	if err != nil {
		fmt.Println("failed to new agent")
		return
	}
	s.Start()
}
