package service

import (
	"context"

	"github.com/example/sailchat/internal/datamodels/chat"
)

// Paginate 读取会话消息的一页，结果始终按 (created_at, id) 升序。
//
// before 模式（默认）：倒序取 limit+1 条判断 has_more，再翻转；NextBefore 指向本页最早一条。
// after 模式：正序取 limit 条，用于增量同步，不计算 has_more。
// 两种模式都返回 NextAfter，指向本页最新一条（空页时沿用请求的 after 游标）。
// 已删除的消息以墓碑形式返回。
func Paginate(ctx context.Context, repo chat.Repository, threadID string, q chat.PageQuery) (*chat.MessagePage, error) {
	q = q.Normalize()
	page := &chat.MessagePage{}

	if q.After != nil {
		list, err := repo.ListMessagesAfter(ctx, threadID, q.After, q.Limit)
		if err != nil {
			return nil, err
		}
		page.Messages = list
	} else {
		list, err := repo.ListMessagesBefore(ctx, threadID, q.Before, q.Limit+1)
		if err != nil {
			return nil, err
		}
		if len(list) > q.Limit {
			page.HasMore = true
			list = list[:q.Limit]
		}
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
		page.Messages = list
		if page.HasMore {
			page.NextBefore = chat.CursorOf(list[0]).Encode()
		}
	}

	for i, m := range page.Messages {
		if m.IsDeleted() {
			redacted := m.Redacted()
			page.Messages[i] = &redacted
		}
	}
	if n := len(page.Messages); n > 0 {
		page.NextAfter = chat.CursorOf(page.Messages[n-1]).Encode()
	} else if q.After != nil {
		page.NextAfter = q.After.Encode()
	}
	if page.Messages == nil {
		page.Messages = []*chat.Message{}
	}
	return page, nil
}
