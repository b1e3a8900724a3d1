//go:build test

package testutils

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/srg/bleadv/internal/controller/sim"
)

// TraceAsserter compares a simulated controller's command trace against an
// expected listing with one command per line:
//
//	enable   7  0106200f40064a060300000000000000000700 010a200101
//	set_data 7
//	disable  7  010a200100
//
// HCI packets are compared only on lines that list them, so a listing can
// pin the encoding of one command and just the order of the others.
type TraceAsserter struct {
	text *TextAsserter
}

func NewTraceAsserter(t TestingT) *TraceAsserter {
	return &TraceAsserter{text: NewTextAsserter(t).WithOptions(WithIgnoreEmptyLines(true))}
}

// Assert reports a unified diff of the rendered trace on mismatch.
func (ta *TraceAsserter) Assert(records []sim.Record, expected string) bool {
	var want []string
	for _, line := range strings.Split(expected, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			want = append(want, strings.Join(fields, " "))
		}
	}

	got := make([]string, 0, len(records))
	for i, r := range records {
		fields := []string{string(r.Op), strconv.Itoa(r.ClientID)}
		if i < len(want) && len(strings.Fields(want[i])) > 2 {
			for _, pkt := range r.Packets {
				fields = append(fields, hex.EncodeToString(pkt))
			}
		}
		got = append(got, strings.Join(fields, " "))
	}

	return ta.text.Assert(strings.Join(got, "\n"), strings.Join(want, "\n"))
}
