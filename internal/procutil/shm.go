// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package procutil

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/symsan-go/taintmut/pkg/label"
)

const labelInfoSize = 32 // two Label (4B) + Op (2B) + Size (2B) + two uint64 (8B each), padded

// NewLabelTable attaches the System V shared-memory segment shmID
// read-only (SHM_RDONLY) and reinterprets it as a []label.Info of
// size/labelInfoSize entries. Close tears the mapping down and issues
// shmctl(IPC_RMID).
func NewLabelTable(shmID int, size uintptr) (*label.Table, error) {
	addr, err := unix.SysvShmAttach(shmID, 0, unix.SHM_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("procutil: shmat(%d): %w", shmID, err)
	}

	n := int(size) / labelInfoSize
	infos := unsafe.Slice((*label.Info)(unsafe.Pointer(&addr[0])), n)

	closer := func() error {
		if err := unix.SysvShmDetach(addr); err != nil {
			return fmt.Errorf("procutil: shmdt: %w", err)
		}
		if _, err := unix.SysvShmCtl(shmID, unix.IPC_RMID, nil); err != nil {
			return fmt.Errorf("procutil: shmctl(IPC_RMID): %w", err)
		}
		return nil
	}
	return label.NewMappedTable(infos, closer), nil
}
