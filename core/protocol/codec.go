package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mapping service commands and replies.
const (
	CmdUpdate           = "UPDATE"
	CmdGetMapping       = "GET_MAPPING"
	CmdGetProducts      = "GET_PRODUCTS"
	CmdProductProcessed = "PRODUCT_PROCESSED"
	CmdRemove           = "REMOVE"
	CmdStatus           = "STATUS"

	ReplyOK              = "OK"
	ReplyInvalidFormat   = "ERROR_INVALID_FORMAT"
	ReplyUnknownCommand  = "UNKNOWN_COMMAND"
	ReplyRemoved         = "REMOVED"
	ReplyUnknownOrder    = "UNKNOWN_ORDER"
	ReplyProgressPrefix  = "PROGRESS:"
	ReplyCompletedPrefix = "ORDER_COMPLETED:CRATE "
	ReplyNotifyFailed    = "COMPLETED_BUT_NOTIFICATION_FAILED"
)

// Completion notification and replies.
const (
	CompletionPrefix = "COMPLETED:"

	ReplyAck      = "ACK"
	ReplyNotFound = "NOT_FOUND"
	ReplyError    = "ERROR"
)

// Assignment binds an order to a destination crate on the mapping service.
type Assignment struct {
	ShortID       string
	Crate         int
	TotalProducts int
	Priority      int
	Products      []string
}

// Encode renders the UPDATE command. Product names are sent verbatim.
func (a Assignment) Encode() string {
	return fmt.Sprintf("%s:%s:%d:%d:%d:%s", CmdUpdate, a.ShortID, a.Crate, a.TotalProducts, a.Priority, strings.Join(a.Products, ","))
}

// ErrInvalidFormat is returned by ParseUpdate for malformed commands.
var ErrInvalidFormat = errors.New("invalid UPDATE format")

// ParseUpdate decodes an UPDATE command. Besides the full six-field form it
// accepts the older forms without products (five fields) and without priority
// or products (four fields).
func ParseUpdate(line string) (Assignment, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 6)
	if len(parts) < 4 || parts[0] != CmdUpdate || parts[1] == "" {
		return Assignment{}, ErrInvalidFormat
	}
	a := Assignment{ShortID: parts[1]}
	var err error
	if a.Crate, err = strconv.Atoi(parts[2]); err != nil {
		return Assignment{}, fmt.Errorf("%w: crate %q", ErrInvalidFormat, parts[2])
	}
	if a.TotalProducts, err = strconv.Atoi(parts[3]); err != nil {
		return Assignment{}, fmt.Errorf("%w: total %q", ErrInvalidFormat, parts[3])
	}
	if len(parts) >= 5 {
		if a.Priority, err = strconv.Atoi(parts[4]); err != nil {
			return Assignment{}, fmt.Errorf("%w: priority %q", ErrInvalidFormat, parts[4])
		}
	}
	if len(parts) == 6 && parts[5] != "" {
		a.Products = strings.Split(parts[5], ",")
	}
	return a, nil
}

// FormatCompletion renders a completion notification for token.
func FormatCompletion(token string) string { return CompletionPrefix + token }

// ExtractCompletion finds a completion notification in buf and returns the
// token. The token ends at the first line break; ok is false when buf holds no
// complete notification yet.
func ExtractCompletion(buf string) (token string, ok bool) {
	i := strings.Index(buf, CompletionPrefix)
	if i < 0 {
		return "", false
	}
	rest := buf[i+len(CompletionPrefix):]
	if j := strings.IndexAny(rest, "\r\n"); j >= 0 {
		rest = rest[:j]
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}

// MightBecomeCompletion reports whether buf could still grow into a completion
// notification, i.e. it is a prefix of CompletionPrefix or already contains it.
func MightBecomeCompletion(buf string) bool {
	b := strings.TrimLeft(buf, " \t\r\n")
	if len(b) < len(CompletionPrefix) {
		return strings.HasPrefix(CompletionPrefix, b)
	}
	return strings.Contains(buf, CompletionPrefix)
}
