package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/transcribe/api-go/internal/model"
)

// Format is a downloadable transcript file kind.
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
	FormatSRT
	FormatVTT
	FormatLRC
)

type encoderFunc func(buf *bytes.Buffer, t model.Transcript) error

type formatInfo struct {
	name        string
	contentType string
	encode      encoderFunc
}

// formats is indexed by Format; adding a kind means adding a row here.
var formats = [...]formatInfo{
	FormatJSON: {"json", "application/json", encodeJSON},
	FormatCSV:  {"csv", "text/csv; charset=utf-8", encodeCSV},
	FormatSRT:  {"srt", "application/x-subrip", encodeSRT},
	FormatVTT:  {"vtt", "text/vtt; charset=utf-8", encodeVTT},
	FormatLRC:  {"lrc", "text/plain; charset=utf-8", encodeLRC},
}

// Formats lists every supported format in declaration order.
func Formats() []Format {
	out := make([]Format, len(formats))
	for i := range formats {
		out[i] = Format(i)
	}
	return out
}

// ParseFormat maps a case-insensitive name such as "srt" to its Format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, info := range formats {
		if info.name == name {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (supported: %s)", model.ErrInvalidFormat, name, supportedNames())
}

func (f Format) valid() bool { return f >= 0 && int(f) < len(formats) }

func (f Format) String() string {
	if !f.valid() {
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
	return formats[f].name
}

// Filename is the conventional artifact name, e.g. transcription.srt.
func (f Format) Filename() string { return "transcription." + f.String() }

// ContentType is the MIME type served for downloads in format f.
func (f Format) ContentType() string {
	if !f.valid() {
		return "application/octet-stream"
	}
	return formats[f].contentType
}

// Encode renders t in format f. Output is deterministic for identical input.
func Encode(t model.Transcript, f Format) ([]byte, error) {
	if !f.valid() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidFormat, f)
	}
	var buf bytes.Buffer
	if err := formats[f].encode(&buf, t); err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

func supportedNames() string {
	names := make([]string, len(formats))
	for i, info := range formats {
		names[i] = info.name
	}
	return strings.Join(names, ", ")
}

func encodeJSON(buf *bytes.Buffer, t model.Transcript) error {
	if t.Segments == nil {
		t.Segments = []model.Segment{}
	}
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

func encodeCSV(buf *bytes.Buffer, t model.Transcript) error {
	w := csv.NewWriter(buf)
	w.UseCRLF = true
	if err := w.Write([]string{"segment", "start_time", "end_time", "text"}); err != nil {
		return err
	}
	for i, seg := range t.Segments {
		start, end, err := span(seg, StyleSeconds)
		if err != nil {
			return err
		}
		if err := w.Write([]string{strconv.Itoa(i + 1), start, end, seg.Text}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func encodeSRT(buf *bytes.Buffer, t model.Transcript) error {
	for i, seg := range t.Segments {
		start, end, err := span(seg, StyleSRT)
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, "%d\n%s --> %s\n%s\n\n", i+1, start, end, seg.Text)
	}
	return nil
}

func encodeVTT(buf *bytes.Buffer, t model.Transcript) error {
	buf.WriteString("WEBVTT\n\n")
	for _, seg := range t.Segments {
		start, end, err := span(seg, StyleVTT)
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, "%s --> %s\n", start, end)
		if len(seg.Words) == 0 {
			fmt.Fprintf(buf, "%s\n\n", seg.Text)
			continue
		}
		for _, w := range seg.Words {
			ws, err := FormatTimestamp(w.Start, StyleVTT)
			if err != nil {
				return err
			}
			we, err := FormatTimestamp(w.End, StyleVTT)
			if err != nil {
				return err
			}
			fmt.Fprintf(buf, "<%s>%s</%s> ", ws, w.Word, we)
		}
		buf.WriteString("\n\n")
	}
	return nil
}

func encodeLRC(buf *bytes.Buffer, t model.Transcript) error {
	buf.WriteString("[ti:Transcription]\n")
	buf.WriteString("[ar:ASR System]\n")
	for _, seg := range t.Segments {
		start, err := FormatTimestamp(seg.Start, StyleLRC)
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, "[%s]%s\n", start, seg.Text)
	}
	return nil
}

func span(seg model.Segment, style TimestampStyle) (string, string, error) {
	start, err := FormatTimestamp(seg.Start, style)
	if err != nil {
		return "", "", err
	}
	end, err := FormatTimestamp(seg.End, style)
	if err != nil {
		return "", "", err
	}
	return start, end, nil
}
