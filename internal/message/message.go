// Package message renders the notification texts TimePick hands back to
// organizers. Nothing here sends anything; every function is a pure
// function of the event it is given, so identical input gives identical bytes.
package message

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mkmk6794/timepick/internal/domain"
)

const (
	noDescription = "추가 설명 없음"
	untitledEvent = "새 이벤트"
)

type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Confirmation is the pair of texts produced when an event is confirmed.
type Confirmation struct {
	Email Email  `json:"email"`
	SMS   string `json:"sms"`
}

// Invitation is the request an organizer sends to one participant.
type Invitation struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Mailto  string `json:"mailto"`
}

const confirmationBody = `안녕하세요,

%[1]s님이 주최하는 "%[2]s" 일정이 확정되었습니다.

📅 확정 일시
날짜: %[3]s
시간: %[4]s ~ %[5]s

📝 상세 내용
%[6]s

%[7]s

참석 부탁드립니다.

감사합니다.
%[1]s 드림

---
TimePick으로 생성된 일정 안내입니다.`

const smsBody = `[%s] 일정 확정 안내
📅 %s %s~%s
주최: %s`

const invitationBody = `안녕하세요 %s님,

일정 조율을 위해 아래 링크에서 가능한 시간을 선택해주세요.

응답 링크: %s

감사합니다.`

// ConfirmationFor renders the confirmation email and SMS for a confirmed
// event. The organizer message section is left out when the message is empty.
func ConfirmationFor(ev *domain.Event) (Confirmation, error) {
	if !ev.IsConfirmed() {
		return Confirmation{}, domain.ErrNotConfirmed
	}
	return Confirmation{
		Email: confirmationEmail(ev),
		SMS:   confirmationSMS(ev),
	}, nil
}

func confirmationEmail(ev *domain.Event) Email {
	d := ev.ConfirmedDate

	description := ev.Description
	if description == "" {
		description = noDescription
	}

	var organizerNote string
	if ev.ConfirmationMessage != "" {
		organizerNote = "\n💬 주최자 메시지\n" + ev.ConfirmationMessage
	}

	return Email{
		Subject: fmt.Sprintf("[확정] %s 일정 안내", ev.Title),
		Body: fmt.Sprintf(confirmationBody,
			ev.OrganizerName, ev.Title,
			d.Date, d.StartTime, d.EndTime,
			description, organizerNote,
		),
	}
}

func confirmationSMS(ev *domain.Event) string {
	d := ev.ConfirmedDate
	return fmt.Sprintf(smsBody, ev.Title, d.Date, d.StartTime, d.EndTime, ev.OrganizerName)
}

// InvitationFor renders the availability request for one participant,
// including a ready-to-open mailto: link.
func InvitationFor(ev *domain.Event, p domain.Participant, responseURL string) Invitation {
	title := ev.Title
	if title == "" {
		title = untitledEvent
	}
	inv := Invitation{
		To:      p.Email,
		Subject: "일정 조율 요청: " + title,
		Body:    fmt.Sprintf(invitationBody, p.Name, responseURL),
	}
	inv.Mailto = mailto(inv)
	return inv
}

func mailto(inv Invitation) string {
	// url.QueryEscape encodes spaces as '+', which mail clients keep literally.
	escape := func(s string) string {
		return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	}
	return "mailto:" + inv.To + "?subject=" + escape(inv.Subject) + "&body=" + escape(inv.Body)
}
