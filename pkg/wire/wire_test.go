// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/symsan-go/taintmut/pkg/label"
)

func TestReadPipeMsgRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	write := func(v interface{}) {
		switch x := v.(type) {
		case uint32:
			var b [4]byte
			le.PutUint32(b[:], x)
			buf.Write(b[:])
		case uint64:
			var b [8]byte
			le.PutUint64(b[:], x)
			buf.Write(b[:])
		}
	}
	write(uint32(MemcmpType))
	write(uint32(7))
	write(uint64(99))
	write(uint64(0xdeadbeef))
	write(uint32(3))
	write(uint32(5))

	msg, err := ReadPipeMsg(&buf)
	if err != nil {
		t.Fatalf("ReadPipeMsg: %v", err)
	}
	want := PipeMsg{MsgType: MemcmpType, Label: label.Label(7), Result: 99, Addr: 0xdeadbeef, ID: 3, Context: 5}
	if msg != want {
		t.Errorf("ReadPipeMsg = %+v, want %+v", msg, want)
	}
}

func TestReadPipeMsgShortReadErrors(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})
	if _, err := ReadPipeMsg(buf); err == nil {
		t.Fatal("ReadPipeMsg on a truncated buffer should error")
	}
}

func TestReadGepMsgRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	var b4 [4]byte
	var b8 [8]byte
	le.PutUint32(b4[:], 11)
	buf.Write(b4[:])
	le.PutUint32(b4[:], 22)
	buf.Write(b4[:])
	le.PutUint64(b8[:], 0x1234)
	buf.Write(b8[:])

	msg, err := ReadGepMsg(&buf)
	if err != nil {
		t.Fatalf("ReadGepMsg: %v", err)
	}
	want := GepMsg{IndexLabel: label.Label(11), PtrLabel: label.Label(22), PtrResult: 0x1234}
	if msg != want {
		t.Errorf("ReadGepMsg = %+v, want %+v", msg, want)
	}
}

func TestReadMemcmpMsgRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], 55)
	buf.Write(b4[:])
	buf.WriteString("abcd")

	msg, err := ReadMemcmpMsg(&buf, 4)
	if err != nil {
		t.Fatalf("ReadMemcmpMsg: %v", err)
	}
	if msg.Label != label.Label(55) || string(msg.Content) != "abcd" {
		t.Errorf("ReadMemcmpMsg = %+v, want Label=55 Content=abcd", msg)
	}
}

func TestTaintOptionsFormat(t *testing.T) {
	got := TaintOptions("/tmp/taint", 9, 4, true)
	want := "taint_file=/tmp/taint:shm_id=9:pipe_fd=4:debug=1"
	if got != want {
		t.Errorf("TaintOptions = %q, want %q", got, want)
	}
	got = TaintOptions("/tmp/taint", 9, 4, false)
	if got[len(got)-1] != '0' {
		t.Errorf("TaintOptions debug=false should end in debug=0, got %q", got)
	}
}
