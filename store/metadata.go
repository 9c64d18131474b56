package store

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

const metadataPageSize = 4096

// metadataFile is a single mmap'd page persisting a durable segment's
// published read_tail across restarts, generalizing pslice.go's persistent
// fixed-layout slice header (a small mmap'd region holding slice metadata
// alongside its data blocks) down to the one int64 a Segment needs to
// recover: everything else (which segment files exist, how big they are)
// is re-derived from the filesystem at Open time.
type metadataFile struct {
	file *os.File
	data []byte
}

func openMetadataFile(path string) (*metadataFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < metadataPageSize {
		if err := f.Truncate(metadataPageSize); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, metadataPageSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &metadataFile{file: f, data: data}, nil
}

func (m *metadataFile) tailPtr() *int64 {
	return (*int64)(unsafe.Pointer(&m.data[0]))
}

func (m *metadataFile) Tail() int64 {
	return atomic.LoadInt64(m.tailPtr())
}

func (m *metadataFile) SetTail(tail int64) {
	atomic.StoreInt64(m.tailPtr(), tail)
}

func (m *metadataFile) Sync() error {
	return m.file.Sync()
}

func (m *metadataFile) Close() error {
	if err := syscall.Munmap(m.data); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
