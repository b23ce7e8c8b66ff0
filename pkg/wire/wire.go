// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package wire holds the fixed-layout structs exchanged with the
// instrumented target over the notification pipe, plus the
// TAINT_OPTIONS env string written before spawning the child.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/symsan-go/taintmut/pkg/label"
)

// MsgType tags a PipeMsg's payload kind.
type MsgType uint32

const (
	CondType MsgType = iota
	GepType
	MemcmpType
	FsizeType
)

// PipeMsg is the fixed header every notification starts with:
// msg_type, label, result, addr, id, context.
type PipeMsg struct {
	MsgType MsgType
	Label   label.Label
	Result  uint64
	Addr    uint64
	ID      uint32
	Context uint32
}

const pipeMsgSize = 4 + 4 + 8 + 8 + 4 + 4

// GepMsg follows a PipeMsg whose MsgType is GepType. GEP records are
// reserved for array-bounds inference; the engine never acts on
// GepMsg beyond the IndexLabel cross-check.
type GepMsg struct {
	IndexLabel label.Label
	PtrLabel   label.Label
	PtrResult  uint64
}

const gepMsgSize = 4 + 4 + 8

// MemcmpMsg follows a PipeMsg whose MsgType is MemcmpType: Label
// duplicates the header's for a consistency check, and Content is
// Result bytes long.
type MemcmpMsg struct {
	Label   label.Label
	Content []byte
}

// ReadPipeMsg decodes one fixed-size PipeMsg header.
func ReadPipeMsg(r io.Reader) (PipeMsg, error) {
	var buf [pipeMsgSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return PipeMsg{}, err
	}
	le := binary.LittleEndian
	return PipeMsg{
		MsgType: MsgType(le.Uint32(buf[0:4])),
		Label:   label.Label(le.Uint32(buf[4:8])),
		Result:  le.Uint64(buf[8:16]),
		Addr:    le.Uint64(buf[16:24]),
		ID:      le.Uint32(buf[24:28]),
		Context: le.Uint32(buf[28:32]),
	}, nil
}

// ReadGepMsg decodes one fixed-size GepMsg body.
func ReadGepMsg(r io.Reader) (GepMsg, error) {
	var buf [gepMsgSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return GepMsg{}, err
	}
	le := binary.LittleEndian
	return GepMsg{
		IndexLabel: label.Label(le.Uint32(buf[0:4])),
		PtrLabel:   label.Label(le.Uint32(buf[4:8])),
		PtrResult:  le.Uint64(buf[8:16]),
	}, nil
}

// ReadMemcmpMsg decodes a MemcmpMsg whose Content is contentLen bytes,
// per the PipeMsg.Result that preceded it.
func ReadMemcmpMsg(r io.Reader, contentLen uint64) (MemcmpMsg, error) {
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return MemcmpMsg{}, err
	}
	content := make([]byte, contentLen)
	if _, err := io.ReadFull(r, content); err != nil {
		return MemcmpMsg{}, err
	}
	return MemcmpMsg{
		Label:   label.Label(binary.LittleEndian.Uint32(lbuf[:])),
		Content: content,
	}, nil
}

// TaintOptions builds the TAINT_OPTIONS string the instrumented target
// reads at startup: "taint_file=%s:shm_id=%d:pipe_fd=%d:debug=%d".
func TaintOptions(taintFile string, shmID int, pipeFD int, debug bool) string {
	d := 0
	if debug {
		d = 1
	}
	return fmt.Sprintf("taint_file=%s:shm_id=%d:pipe_fd=%d:debug=%d", taintFile, shmID, pipeFD, d)
}
