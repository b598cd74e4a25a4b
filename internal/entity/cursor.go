package entity

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/mbeoliero/trato/pkg/errcode"
)

// Cursor is the position of the last message served by a page
type Cursor struct {
	CreatedAt int64
	Id        int64
}

// CursorAfter returns the cursor positioned on msg
func CursorAfter(msg *Message) *Cursor {
	return &Cursor{CreatedAt: msg.CreatedAt, Id: msg.Id}
}

// Encode returns the opaque string form of c
func (c *Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt, c.Id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. An empty string means the first page.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	createdAt, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, errcode.ErrInvalidParam
	}
	c := &Cursor{}
	if c.CreatedAt, err = strconv.ParseInt(createdAt, 10, 64); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	if c.Id, err = strconv.ParseInt(id, 10, 64); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	return c, nil
}
