package app

import (
	"bytes"
	"strings"
	"testing"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/params"
)

func TestHCHDGSentenceFormat(t *testing.T) {
	tests := []struct {
		heading     int
		declination int
		wantBody    string
	}{
		{90, 12, "HCHDG,90.0,,,12.0,E"},
		{5, -3, "HCHDG,5.0,,,3.0,W"},
		{0, 0, "HCHDG,0.0,,,0.0,E"},
		{359, 180, "HCHDG,359.0,,,180.0,E"},
	}
	for _, tt := range tests {
		got := hchdgSentence(tt.heading, tt.declination)
		if !strings.HasSuffix(got, "\r\n") {
			t.Errorf("sentence %q missing CRLF terminator", got)
		}
		body := strings.TrimSuffix(strings.TrimPrefix(got, "$"), "\r\n")
		star := strings.LastIndex(body, "*")
		if star < 0 {
			t.Fatalf("sentence %q missing checksum delimiter", got)
		}
		if body[:star] != tt.wantBody {
			t.Errorf("sentence body = %q, want %q", body[:star], tt.wantBody)
		}
	}
}

func TestHCHDGParsesAsValidNMEA(t *testing.T) {
	sentence := hchdgSentence(123, -7)
	parsed, err := nmea.Parse(strings.TrimSpace(sentence))
	if err != nil {
		t.Fatalf("emitted sentence does not parse: %v", err)
	}
	if parsed.DataType() != "HDG" {
		t.Errorf("data type = %q, want HDG", parsed.DataType())
	}
	if parsed.TalkerID() != "HC" {
		t.Errorf("talker = %q, want HC", parsed.TalkerID())
	}
}

func TestNMEAWriterEmitsOnHeadingOnly(t *testing.T) {
	var buf bytes.Buffer
	w := &nmeaWriter{port: &buf, declination: params.New(10)}

	w.handleEvent(mag.RawChanged{Sample: mag.Vector3{X: 1}})
	w.handleEvent(mag.CalibratedChanged{MaxX: 5})
	if buf.Len() != 0 {
		t.Errorf("non-heading events wrote %q", buf.String())
	}

	w.handleEvent(mag.HeadingChanged{Degrees: 45})
	got := buf.String()
	if !strings.HasPrefix(got, "$HCHDG,45.0,,,10.0,E*") {
		t.Errorf("heading event wrote %q", got)
	}
}
