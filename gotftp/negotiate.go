package gotftp

import (
	"strconv"
	"time"
)

// optionFailure signals that an option's value failed to parse or
// validate; the caller must reply with ERROR(OptionFailure) and abort
// without ever sending an OACK (spec.md §4.3/§4.4 Phase C).
type optionFailure struct{ msg string }

func (e *optionFailure) Error() string { return e.msg }

// negotiateCommon applies the blksize and timeout options shared by
// RRQ and WRQ negotiation (RFC 2348, RFC 2349). tsize is handled by
// the caller since its semantics differ between read and write
// (spec.md §4.3 vs §4.4 Phase C).
//
// Unrecognized option names are silently omitted from the returned
// map (spec.md §4.1/§4.3). Recognized but invalid values return
// *optionFailure.
func negotiateCommon(t *transfer, req *RequestPacket, oack map[string]string) error {
	if raw, orig, ok := req.OptionValue(OptBlockSize); ok {
		size, err := parseBlockSize(raw)
		if err != nil {
			return &optionFailure{msg: "invalid blksize: " + err.Error()}
		}
		t.blksize = size
		oack[orig] = raw
	}
	if raw, orig, ok := req.OptionValue(OptTimeout); ok {
		secs, err := parseTimeoutSeconds(raw)
		if err != nil {
			return &optionFailure{msg: "invalid timeout: " + err.Error()}
		}
		t.timeout = time.Duration(secs) * time.Second
		oack[orig] = raw
	}
	return nil
}

// negotiateReadOptions additionally handles tsize for RRQ: the client
// always sends "0"; the server echoes the actual file size.
func negotiateReadOptions(t *transfer, req *RequestPacket, fileSize int64) (map[string]string, error) {
	oack := make(map[string]string)
	if err := negotiateCommon(t, req, oack); err != nil {
		return nil, err
	}
	if _, orig, ok := req.OptionValue(OptTransferSize); ok {
		oack[orig] = strconv.FormatInt(fileSize, 10)
	}
	return oack, nil
}

// negotiateWriteOptions additionally handles tsize for WRQ: the
// client reports the size it intends to send; the server simply
// echoes whatever integer was given (no free-space check, spec.md
// §4.4 Phase C).
func negotiateWriteOptions(t *transfer, req *RequestPacket) (map[string]string, error) {
	oack := make(map[string]string)
	if err := negotiateCommon(t, req, oack); err != nil {
		return nil, err
	}
	if raw, orig, ok := req.OptionValue(OptTransferSize); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &optionFailure{msg: "invalid tsize: " + err.Error()}
		}
		oack[orig] = strconv.Itoa(n)
	}
	return oack, nil
}
