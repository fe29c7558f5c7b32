package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mkmk6794/timepick/internal/schedule"
	"github.com/mkmk6794/timepick/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPublicURL = "https://timepick.example"

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewBBoltStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := NewHandler(schedule.NewService(s), testPublicURL+"/")
	r := gin.New()
	RegisterHandlers(r, h)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return v
}

func validCreateRequest() CreateEventRequest {
	return CreateEventRequest{
		Title:          "팀 회식",
		Description:    "강남역 근처",
		OrganizerName:  "김민수",
		OrganizerEmail: "minsu@example.com",
		ProposedDates: []schedule.NewDate{
			{Date: "2025-06-01", StartTime: "09:00", EndTime: "10:00"},
			{Date: "2025-06-02", StartTime: "14:00", EndTime: "15:00"},
		},
		Participants: []schedule.NewParticipant{
			{Name: "Alice", Email: "alice@example.com"},
			{Name: "Bob", Email: "bob@example.com"},
		},
	}
}

func createEvent(t *testing.T, r http.Handler) CreatedEvent {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/events", validCreateRequest())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[CreateEventResponse](t, w).Event
}

func organizerEvent(t *testing.T, r http.Handler, token string) OrganizerEvent {
	t.Helper()
	w := doJSON(t, r, http.MethodGet, "/api/events/organizer/"+token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[OrganizerEventResponse](t, w).Event
}

func TestHandler_GetHealth(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Fatalf("expected status 'ok', got %q", resp.Status)
	}
}

func TestHandler_GetOpenAPISpec(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/openapi.yaml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "TimePick API") {
		t.Fatal("expected the embedded spec in the body")
	}
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	if err != nil {
		t.Fatalf("failed to load spec: %v", err)
	}
	if doc.Paths.Find("/api/events/{eventId}/confirm") == nil {
		t.Fatal("confirm path missing from spec")
	}
}

func TestHandler_CreateEvent(t *testing.T) {
	r := setupTestRouter(t)

	ev := createEvent(t, r)
	if ev.ID == "" || ev.OrganizerToken == "" {
		t.Fatalf("expected ids in response, got %+v", ev)
	}
	if want := testPublicURL + "/dashboard/" + ev.OrganizerToken; ev.DashboardLink != want {
		t.Fatalf("expected dashboard link %q, got %q", want, ev.DashboardLink)
	}
	if len(ev.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(ev.Participants))
	}

	alice := ev.Participants[0]
	if want := testPublicURL + "/respond/" + alice.ResponseToken; alice.ResponseLink != want {
		t.Fatalf("expected response link %q, got %q", want, alice.ResponseLink)
	}
	if alice.Invitation.Subject != "일정 조율 요청: 팀 회식" {
		t.Fatalf("unexpected invitation subject %q", alice.Invitation.Subject)
	}
	if !strings.HasPrefix(alice.Invitation.Mailto, "mailto:alice@example.com?") {
		t.Fatalf("unexpected mailto %q", alice.Invitation.Mailto)
	}
}

func TestHandler_CreateEvent_LinksFromRequestHost(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewBBoltStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	r := gin.New()
	RegisterHandlers(r, NewHandler(schedule.NewService(s), ""))

	ev := createEvent(t, r)
	if !strings.HasPrefix(ev.DashboardLink, "http://example.com/dashboard/") {
		t.Fatalf("expected link built from request host, got %q", ev.DashboardLink)
	}
}

func TestHandler_CreateEvent_InvalidInput(t *testing.T) {
	r := setupTestRouter(t)

	body := validCreateRequest()
	body.Title = "  "
	w := doJSON(t, r, http.MethodPost, "/api/events", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestHandler_ResponseFlow(t *testing.T) {
	r := setupTestRouter(t)
	ev := createEvent(t, r)
	org := organizerEvent(t, r, ev.OrganizerToken)
	d1, d2 := org.ProposedDates[0].ID, org.ProposedDates[1].ID
	alice, bob := ev.Participants[0], ev.Participants[1]

	w := doJSON(t, r, http.MethodGet, "/api/events/respond/"+bob.ResponseToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	pv := decode[ParticipantEventResponse](t, w)
	if pv.Participant.Name != "Bob" || pv.ExistingResponse != nil {
		t.Fatalf("unexpected participant view %+v", pv)
	}
	if strings.Contains(w.Body.String(), "alice@example.com") {
		t.Fatal("participant view must not expose other participants")
	}

	for _, sub := range []SubmitResponseRequest{
		{ResponseToken: alice.ResponseToken, SelectedDates: []string{d1}},
		{ResponseToken: bob.ResponseToken, SelectedDates: []string{d1, d2}},
	} {
		w := doJSON(t, r, http.MethodPost, "/api/responses", sub)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	org = organizerEvent(t, r, ev.OrganizerToken)
	if org.AvailabilityByDate[0].AvailableCount != 2 || org.AvailabilityByDate[0].Percentage != 100 {
		t.Fatalf("unexpected stats for date 1: %+v", org.AvailabilityByDate[0])
	}
	if org.AvailabilityByDate[1].AvailableCount != 1 || org.AvailabilityByDate[1].Percentage != 50 {
		t.Fatalf("unexpected stats for date 2: %+v", org.AvailabilityByDate[1])
	}
	if org.ResponseRate != 100 || org.TotalResponses != 2 {
		t.Fatalf("expected full response rate, got %d%% of %d", org.ResponseRate, org.TotalResponses)
	}
	if !org.Participants[1].HasResponded {
		t.Fatal("expected Bob to have responded")
	}

	w = doJSON(t, r, http.MethodGet, "/api/events/respond/"+bob.ResponseToken, nil)
	pv = decode[ParticipantEventResponse](t, w)
	if len(pv.ExistingResponse) != 2 {
		t.Fatalf("expected Bob's previous selection, got %v", pv.ExistingResponse)
	}
}

func TestHandler_SubmitResponse_Errors(t *testing.T) {
	r := setupTestRouter(t)
	ev := createEvent(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/responses", SubmitResponseRequest{
		ResponseToken: "00000000-0000-0000-0000-000000000000",
		SelectedDates: []string{"x"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/responses", SubmitResponseRequest{
		ResponseToken: ev.Participants[0].ResponseToken,
		SelectedDates: []string{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty selection, got %d", w.Code)
	}
}

func TestHandler_GetEvent_NotFoundAndMalformed(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/events/organizer/00000000-0000-0000-0000-000000000000", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/events/respond/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed token, got %d", w.Code)
	}
}

func TestHandler_ConfirmEvent(t *testing.T) {
	r := setupTestRouter(t)
	ev := createEvent(t, r)
	org := organizerEvent(t, r, ev.OrganizerToken)
	d2 := org.ProposedDates[1]
	msg := "견과류 알러지 주의"

	w := doJSON(t, r, http.MethodPost, "/api/events/"+ev.ID+"/confirm", ConfirmEventRequest{
		OrganizerToken:  ev.OrganizerToken,
		ConfirmedDateID: d2.ID,
		Message:         &msg,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[ConfirmEventResponse](t, w)
	if res.Event.ConfirmedDate == nil || res.Event.ConfirmedDate.ID != d2.ID {
		t.Fatalf("expected confirmed date %s, got %+v", d2.ID, res.Event.ConfirmedDate)
	}
	if !strings.Contains(res.Messages.Email.Body, msg) {
		t.Fatal("expected organizer message in email body")
	}
	if !strings.HasPrefix(res.Messages.SMS, "[팀 회식] 일정 확정 안내") {
		t.Fatalf("unexpected sms %q", res.Messages.SMS)
	}

	// second confirmation is a conflict
	w = doJSON(t, r, http.MethodPost, "/api/events/"+ev.ID+"/confirm", ConfirmEventRequest{
		OrganizerToken:  ev.OrganizerToken,
		ConfirmedDateID: org.ProposedDates[0].ID,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/events/respond/"+ev.Participants[0].ResponseToken+"/calendar.ics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("expected text/calendar, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "DTSTART:20250602T140000") {
		t.Fatalf("unexpected calendar body: %s", w.Body.String())
	}
}

func TestHandler_ConfirmEvent_Rejections(t *testing.T) {
	r := setupTestRouter(t)
	ev := createEvent(t, r)
	org := organizerEvent(t, r, ev.OrganizerToken)

	w := doJSON(t, r, http.MethodPost, "/api/events/"+ev.ID+"/confirm", ConfirmEventRequest{
		OrganizerToken:  "00000000-0000-0000-0000-000000000000",
		ConfirmedDateID: org.ProposedDates[0].ID,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong organizer token, got %d", w.Code)
	}
	if decode[Error](t, w).Message != "event not found" {
		t.Fatal("wrong token must look like an unknown event")
	}

	w = doJSON(t, r, http.MethodPost, "/api/events/"+ev.ID+"/confirm", ConfirmEventRequest{
		OrganizerToken:  ev.OrganizerToken,
		ConfirmedDateID: "nope",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown date, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/events/respond/"+ev.Participants[0].ResponseToken+"/calendar.ics", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before confirmation, got %d", w.Code)
	}

	if org = organizerEvent(t, r, ev.OrganizerToken); org.Status != "pending" {
		t.Fatalf("expected event to stay pending, got %s", org.Status)
	}
}
