package application

import (
	"context"
	"sort"

	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
)

// Lock は獲得済みのリソースロックを表す
type Lock interface {
	Release(ctx context.Context) error
}

// LockManager はコート単位の排他ロックを提供するインターフェース
// 申込み判定の read-check-then-write と解放カスケードは、
// 同一コートに対して直列化されなければならない
type LockManager interface {
	// AcquireResourceLock は指定コートのロックを取得する
	// 規定回数のリトライ後も取得できない場合はエラーを返す
	AcquireResourceLock(ctx context.Context, courtID string) (Lock, error)
}

// Notification は通知送信の内容を表す
type Notification struct {
	RequesterID string
	EventKind   string
	Payload     map[string]any
}

// 通知イベント種別
const (
	EventReservationCreated = "reservation_created"
	EventReservationExpired = "reservation_expired"
	EventWaitlistJoined     = "waitlist_joined"
	EventWaitlistPromoted   = "waitlist_promoted"
	EventWaitlistCancelled  = "waitlist_cancelled"
	EventWaitlistConverted  = "waitlist_converted"
	EventGroupApproved      = "group_approved"
	EventGroupRejected      = "group_rejected"
	EventGroupPaid          = "group_paid"
	EventGroupCancelled     = "group_cancelled"
)

// Notifier は通知送信のインターフェース
// コアから見て fire-and-forget であり、必ずコミット後・ロック解放後に呼ぶ
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// courtIDsOf はグループの明細が属するコートIDを重複なし・昇順で返す
// 複数ロックを常に同じ順序で取得してデッドロックを防ぐ
func courtIDsOf(g *reservation.Group) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, item := range g.LineItems {
		if _, ok := seen[item.Interval.CourtID]; ok {
			continue
		}
		seen[item.Interval.CourtID] = struct{}{}
		ids = append(ids, item.Interval.CourtID)
	}
	sort.Strings(ids)
	return ids
}
