package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
	DefaultThreadLimit  = 20
	MaxThreadLimit      = 100
)

// ErrInvalidCursor 游标无法解析
var ErrInvalidCursor = errors.New("chat: invalid cursor")

// Cursor 消息分页锚点；ID 为空时只按时间比较
type Cursor struct {
	At time.Time `json:"t"`
	ID string    `json:"id,omitempty"`
}

// CursorOf 以消息的排序键生成游标
func CursorOf(m *Message) *Cursor {
	return &Cursor{At: m.CreatedAt.UTC(), ID: m.ID}
}

// Encode 生成不透明的游标字符串
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ParseCursor 同时接受 RFC3339 时间戳与 Encode 生成的游标；空串返回 nil
func ParseCursor(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &Cursor{At: t.UTC()}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.At.IsZero() {
		return nil, ErrInvalidCursor
	}
	c.At = c.At.UTC()
	return &c, nil
}

// PageQuery 消息分页参数；Before 与 After 互斥，同时给出时以 After 为准
type PageQuery struct {
	Before *Cursor
	After  *Cursor
	Limit  int
}

// Normalize 规范化 limit（默认 50，范围 [1,100]）并处理游标互斥
func (q PageQuery) Normalize() PageQuery {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultMessageLimit
	case q.Limit > MaxMessageLimit:
		q.Limit = MaxMessageLimit
	}
	if q.After != nil {
		q.Before = nil
	}
	return q
}

// MessagePage 一页消息，按 (created_at, id) 升序。
// HasMore 只在向前翻页（before 模式）时有意义。
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	HasMore    bool       `json:"has_more"`
	NextBefore string     `json:"next_before,omitempty"`
	NextAfter  string     `json:"next_after,omitempty"`
}

// ThreadFilter 会话列表筛选条件
type ThreadFilter struct {
	Archived   *bool
	Role       Role
	MyAds      bool
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (f ThreadFilter) Normalize() ThreadFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultThreadLimit
	case f.Limit > MaxThreadLimit:
		f.Limit = MaxThreadLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ThreadView 某个参与者视角下的会话
type ThreadView struct {
	Thread      *Thread      `json:"thread"`
	Me          *Participant `json:"me"`
	Counterpart *Participant `json:"counterpart"`
}

// ViewFor 从预加载了参与者的会话构造视图
func ViewFor(t *Thread, userID int64) (*ThreadView, error) {
	view := &ThreadView{Thread: t}
	for i := range t.Participants {
		p := &t.Participants[i]
		if p.UserID == userID {
			view.Me = p
		} else {
			view.Counterpart = p
		}
	}
	if view.Me == nil {
		return nil, ErrNotAParticipant
	}
	return view, nil
}
