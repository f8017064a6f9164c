package calendar

import "time"

// paymentGrace は支払期限の猶予時間
const paymentGrace = 1 * time.Hour

// PaymentDeadline は支払期限を計算する
// 営業時間内であれば now + 1時間、営業時間外であれば次の営業開始時刻 + 1時間。
// 新規の未払い予約とウェイトリスト繰り上げの両方で同じ規則を使い、
// 渡す now（作成時刻か繰り上げ時刻か）だけが呼び出し側で異なる
func PaymentDeadline(now time.Time, cal *Calendar) time.Time {
	if cal.IsOperating(now) {
		return now.Add(paymentGrace)
	}
	return cal.NextOpen(now).Add(paymentGrace)
}
