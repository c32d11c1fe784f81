package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SysV attaches System V shared memory segments read-only.
type SysV struct{}

func (SysV) Read(id uint64) (*Segment, error) {
	if id > uint64(^uint32(0)>>1) {
		return nil, fmt.Errorf("%w: id=%d out of range", ErrSegment, id)
	}
	shmid := int(id)

	var ds unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(shmid, unix.IPC_STAT, &ds); err != nil {
		return nil, fmt.Errorf("%w: stat id=%d: %w", ErrSegment, id, err)
	}
	if ds.Segsz == 0 {
		return nil, fmt.Errorf("%w: id=%d is empty", ErrSegment, id)
	}
	data, err := unix.SysvShmAttach(shmid, 0, unix.SHM_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("%w: attach id=%d: %w", ErrSegment, id, err)
	}
	return &Segment{
		Data: data,
		release: func() error {
			return unix.SysvShmDetach(data)
		},
	}, nil
}
