// SPDX-License-Identifier: MIT
//go:build scribedebug

package analysis

const debugAssertions = true
