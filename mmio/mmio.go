// Package mmio provides regs.Bus access to a memory-mapped DWC2 register
// window. On Linux the window is mapped from a character device such as
// /dev/mem or a platform UIO resource file.
package mmio
