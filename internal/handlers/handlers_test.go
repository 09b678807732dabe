package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sejin/moim-api/internal/config"
	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/models"
	"github.com/sejin/moim-api/internal/routes"
)

// setupApp wires the full route table against a temp sqlite database.
func setupApp(t *testing.T) *fiber.App {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "moim-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	cfg := &config.Config{DatabaseURL: tmpFile.Name()}
	if err := database.Connect(cfg); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	app := fiber.New()
	routes.Setup(app)
	return app
}

func request(t *testing.T, app *fiber.App, method, path, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func decodeMap(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode object: %v (%s)", err, raw)
	}
	return m
}

func decodeList(t *testing.T, raw []byte) []map[string]interface{} {
	t.Helper()
	var l []map[string]interface{}
	if err := json.Unmarshal(raw, &l); err != nil {
		t.Fatalf("decode list: %v (%s)", err, raw)
	}
	return l
}

func register(t *testing.T, app *fiber.App, email, name string) (token, userID string) {
	t.Helper()
	resp, raw := request(t, app, "POST", "/api/auth/register", "", map[string]interface{}{
		"email":    email,
		"password": "secret123",
		"name":     name,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", email, resp.StatusCode, raw)
	}
	body := decodeMap(t, raw)
	user := body["user"].(map[string]interface{})
	return body["token"].(string), user["id"].(string)
}

func createActivity(t *testing.T, app *fiber.App, token string, overrides map[string]interface{}) string {
	t.Helper()
	payload := map[string]interface{}{
		"title":         "Friday ramen",
		"description":   "late night run",
		"location":      "dorm lobby",
		"category":      "meal",
		"minPeople":     2,
		"maxPeople":     3,
		"scheduledTime": "2026-09-04 19:00",
	}
	for k, v := range overrides {
		payload[k] = v
	}
	resp, raw := request(t, app, "POST", "/api/activities", token, payload)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create activity: status %d (%s)", resp.StatusCode, raw)
	}
	return decodeMap(t, raw)["id"].(string)
}

func feedTitles(t *testing.T, app *fiber.App, token, path string) []string {
	t.Helper()
	resp, raw := request(t, app, "GET", path, token, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("GET %s: status %d (%s)", path, resp.StatusCode, raw)
	}
	list := decodeList(t, raw)
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = item["title"].(string)
	}
	return out
}

func wantReason(t *testing.T, resp *http.Response, raw []byte, reason string) {
	t.Helper()
	body := decodeMap(t, raw)
	if ok, _ := body["ok"].(bool); ok {
		t.Fatalf("expected failure, got ok (%s)", raw)
	}
	if body["reason"] != reason {
		t.Fatalf("reason = %v, want %q (status %d, %s)", body["reason"], reason, resp.StatusCode, raw)
	}
}

func TestCreateValidation(t *testing.T) {
	app := setupApp(t)
	token, _ := register(t, app, "alice@example.com", "Alice")

	cases := []map[string]interface{}{
		{"title": ""},
		{"category": "party"},
		{"minPeople": 1},
		{"minPeople": 3, "maxPeople": 2},
		{"scheduledTime": ""},
	}
	for _, overrides := range cases {
		payload := map[string]interface{}{
			"title":         "Friday ramen",
			"category":      "meal",
			"minPeople":     2,
			"maxPeople":     3,
			"scheduledTime": "2026-09-04 19:00",
		}
		for k, v := range overrides {
			payload[k] = v
		}
		resp, raw := request(t, app, "POST", "/api/activities", token, payload)
		wantReason(t, resp, raw, "validation")
	}
}

// Full happy path: recruit to capacity, reject the overflow join, lock,
// complete, and verify the feeds and counters afterwards.
func TestRecruitLockComplete(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")
	carol, _ := register(t, app, "carol@example.com", "Carol")
	dave, _ := register(t, app, "dave@example.com", "Dave")

	id := createActivity(t, app, alice, nil)

	resp, raw := request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("bob join: status %d (%s)", resp.StatusCode, raw)
	}

	if got := feedTitles(t, app, bob, "/api/activities/ongoing"); len(got) != 1 {
		t.Fatalf("bob ongoing = %v, want the joined activity", got)
	}
	if got := feedTitles(t, app, dave, "/api/activities"); len(got) != 1 {
		t.Fatalf("square = %v, want the activity while not full", got)
	}

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/join", carol, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("carol join: status %d (%s)", resp.StatusCode, raw)
	}

	resp, raw = request(t, app, "POST", "/api/activities/"+id+"/join", dave, nil)
	wantReason(t, resp, raw, "full")

	// Membership invariant: still exactly three on the ledger.
	resp, raw = request(t, app, "GET", "/api/activities/"+id+"/participants", alice, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("participants: status %d", resp.StatusCode)
	}
	if got := decodeList(t, raw); len(got) != 3 {
		t.Fatalf("participants = %d, want 3", len(got))
	}

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/recruitment", alice, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("lock: status %d (%s)", resp.StatusCode, raw)
	}
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/complete", alice, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("complete: status %d (%s)", resp.StatusCode, raw)
	}

	for name, token := range map[string]string{"alice": alice, "bob": bob, "carol": carol} {
		if got := feedTitles(t, app, token, "/api/activities/history"); len(got) != 1 {
			t.Errorf("%s history = %v, want one entry", name, got)
		}
		if got := feedTitles(t, app, token, "/api/activities/ongoing"); len(got) != 0 {
			t.Errorf("%s ongoing = %v, want empty", name, got)
		}
	}
	if got := feedTitles(t, app, dave, "/api/activities"); len(got) != 0 {
		t.Fatalf("square after complete = %v, want empty", got)
	}

	// Each participant's completion counter moved exactly once.
	_, raw = request(t, app, "GET", "/api/me", bob, nil)
	if got := decodeMap(t, raw)["completedCount"].(float64); got != 1 {
		t.Errorf("bob completedCount = %v, want 1", got)
	}

	// Repeat complete must fail before touching the counter again.
	resp, raw = request(t, app, "POST", "/api/activities/"+id+"/complete", alice, nil)
	wantReason(t, resp, raw, "invalid_transition")
	_, raw = request(t, app, "GET", "/api/me", bob, nil)
	if got := decodeMap(t, raw)["completedCount"].(float64); got != 1 {
		t.Errorf("bob completedCount after repeat complete = %v, want 1", got)
	}
}

func TestLockBelowMinimumAndDelete(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	eve, _ := register(t, app, "eve@example.com", "Eve")

	id := createActivity(t, app, alice, nil)

	resp, raw := request(t, app, "POST", "/api/activities/"+id+"/recruitment", alice, nil)
	wantReason(t, resp, raw, "invalid_transition")

	if resp, raw := request(t, app, "DELETE", "/api/activities/"+id, alice, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("delete: status %d (%s)", resp.StatusCode, raw)
	}

	if got := feedTitles(t, app, eve, "/api/activities"); len(got) != 0 {
		t.Fatalf("square after delete = %v, want empty", got)
	}

	_, raw = request(t, app, "GET", "/api/activities/"+id, alice, nil)
	detail := decodeMap(t, raw)
	if detail["isGhost"] != true {
		t.Error("deleted activity should be a ghost for the author")
	}
	actions := detail["actions"].([]interface{})
	if len(actions) != 1 || actions[0] != "restore" {
		t.Fatalf("actions = %v, want [restore]", actions)
	}

	// Author undoes the delete.
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/restore", alice, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("restore: status %d (%s)", resp.StatusCode, raw)
	}
	_, raw = request(t, app, "GET", "/api/activities/"+id, alice, nil)
	if got := decodeMap(t, raw)["status"]; got != "active" {
		t.Fatalf("status after restore = %v, want active", got)
	}
}

func TestDeleteBlockedWithMembers(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, nil)
	request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)

	resp, raw := request(t, app, "DELETE", "/api/activities/"+id, alice, nil)
	wantReason(t, resp, raw, "invalid_transition")

	resp, raw = request(t, app, "DELETE", "/api/activities/"+id, bob, nil)
	wantReason(t, resp, raw, "not_author")
}

func TestCancelAndAcknowledge(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, nil)
	request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/cancel", alice, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cancel: status %d (%s)", resp.StatusCode, raw)
	}

	_, raw := request(t, app, "GET", "/api/activities/"+id, bob, nil)
	actions := decodeMap(t, raw)["actions"].([]interface{})
	if len(actions) != 1 || actions[0] != "ack" {
		t.Fatalf("bob actions = %v, want [ack]", actions)
	}

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/ack", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("ack: status %d (%s)", resp.StatusCode, raw)
	}

	if got := feedTitles(t, app, bob, "/api/activities/ongoing"); len(got) != 0 {
		t.Fatalf("bob ongoing after ack = %v, want empty", got)
	}
	// The author has not acknowledged and still sees the cancelled activity.
	if got := feedTitles(t, app, alice, "/api/activities/ongoing"); len(got) != 1 {
		t.Fatalf("alice ongoing = %v, want the cancelled activity", got)
	}

	// Repeat ack stays a no-op success.
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/ack", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("repeat ack: status %d (%s)", resp.StatusCode, raw)
	}
}

func TestLockReopenRoundTrip(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, nil)
	request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)

	request(t, app, "POST", "/api/activities/"+id+"/recruitment", alice, nil)
	_, raw := request(t, app, "GET", "/api/activities/"+id, alice, nil)
	if got := decodeMap(t, raw)["status"]; got != "locked" {
		t.Fatalf("status = %v, want locked", got)
	}

	request(t, app, "POST", "/api/activities/"+id+"/recruitment", alice, nil)
	_, raw = request(t, app, "GET", "/api/activities/"+id, alice, nil)
	detail := decodeMap(t, raw)
	if detail["status"] != "active" {
		t.Fatalf("status = %v, want active", detail["status"])
	}
	if got := detail["currentPeople"].(float64); got != 2 {
		t.Fatalf("currentPeople = %v, membership must survive the round trip", got)
	}
}

func TestQuitGuards(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, nil)

	resp, raw := request(t, app, "POST", "/api/activities/"+id+"/quit", bob, nil)
	wantReason(t, resp, raw, "not_a_member")

	resp, raw = request(t, app, "POST", "/api/activities/"+id+"/quit", alice, nil)
	wantReason(t, resp, raw, "author_cannot_quit")

	request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/quit", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("quit: status %d (%s)", resp.StatusCode, raw)
	}

	// Quit does not change status; recruitment stays open.
	_, raw = request(t, app, "GET", "/api/activities/"+id, alice, nil)
	if got := decodeMap(t, raw)["status"]; got != "active" {
		t.Fatalf("status after quit = %v, want active", got)
	}

	resp, raw = request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("rejoin after quit: status %d (%s)", resp.StatusCode, raw)
	}
	resp, raw = request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)
	wantReason(t, resp, raw, "already_joined")
}

func TestVerificationGate(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, bobID := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, map[string]interface{}{"requiresVerification": true})

	resp, raw := request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil)
	wantReason(t, resp, raw, "verification_required")

	database.DB.Model(&models.User{}).Where("id = ?", bobID).Update("verified", true)

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("verified join: status %d (%s)", resp.StatusCode, raw)
	}
}

func TestHideIsPerViewer(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")
	carol, _ := register(t, app, "carol@example.com", "Carol")

	id := createActivity(t, app, alice, nil)

	// A stranger has no view of their own to dismiss.
	resp, raw := request(t, app, "POST", "/api/activities/"+id+"/hide", carol, nil)
	wantReason(t, resp, raw, "not_a_member")

	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/join", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("join: status %d (%s)", resp.StatusCode, raw)
	}
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/hide", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("hide: status %d (%s)", resp.StatusCode, raw)
	}

	if got := feedTitles(t, app, bob, "/api/activities"); len(got) != 0 {
		t.Fatalf("bob square = %v, want empty after hide", got)
	}
	if got := feedTitles(t, app, carol, "/api/activities"); len(got) != 1 {
		t.Fatalf("carol square = %v, hide by bob must not affect carol", got)
	}

	// Bob restores his own view.
	if resp, raw := request(t, app, "POST", "/api/activities/"+id+"/restore", bob, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("restore: status %d (%s)", resp.StatusCode, raw)
	}
	if got := feedTitles(t, app, bob, "/api/activities"); len(got) != 1 {
		t.Fatalf("bob square after restore = %v, want one entry", got)
	}
}

func TestExpiredLeavesSquareOnly(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	bob, _ := register(t, app, "bob@example.com", "Bob")

	id := createActivity(t, app, alice, nil)

	// Backdate creation past the expiry window; status stays active.
	database.DB.Model(&models.Activity{}).Where("id = ?", id).
		UpdateColumn("created_at", time.Now().Add(-6*24*time.Hour))

	if got := feedTitles(t, app, bob, "/api/activities"); len(got) != 0 {
		t.Fatalf("square = %v, expired activity must not appear", got)
	}
	if got := feedTitles(t, app, alice, "/api/activities/ongoing"); len(got) != 1 {
		t.Fatalf("alice ongoing = %v, expired activity stays for members", got)
	}

	_, raw := request(t, app, "GET", "/api/activities/"+id, alice, nil)
	detail := decodeMap(t, raw)
	if detail["status"] != "active" {
		t.Fatalf("status = %v, expiry must never be persisted", detail["status"])
	}
	if detail["isExpired"] != true {
		t.Fatal("detail should derive isExpired")
	}
}

func TestLegacyCompletedReadsAsDone(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")

	id := createActivity(t, app, alice, nil)
	database.DB.Model(&models.Activity{}).Where("id = ?", id).
		UpdateColumn("status", "completed")

	_, raw := request(t, app, "GET", "/api/activities/"+id, alice, nil)
	if got := decodeMap(t, raw)["status"]; got != "done" {
		t.Fatalf("status = %v, want legacy completed normalized to done", got)
	}
	if got := feedTitles(t, app, alice, "/api/activities/history"); len(got) != 1 {
		t.Fatalf("history = %v, legacy completed belongs in history", got)
	}
}

func TestJoinUnknownActivity(t *testing.T) {
	app := setupApp(t)
	bob, _ := register(t, app, "bob@example.com", "Bob")

	resp, raw := request(t, app, "POST", "/api/activities/3f1c8a1e-0000-0000-0000-000000000000/join", bob, nil)
	wantReason(t, resp, raw, "not_found")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%s)", resp.StatusCode, raw)
	}
}

// Racing joins must serialize on the capacity check: whatever interleaving
// the store allows, the ledger never exceeds maxPeople.
func TestRacingJoinsNeverExceedCapacity(t *testing.T) {
	app := setupApp(t)
	alice, _ := register(t, app, "alice@example.com", "Alice")
	id := createActivity(t, app, alice, map[string]interface{}{"maxPeople": 3})

	tokens := make([]string, 6)
	for i := range tokens {
		tokens[i], _ = register(t, app, fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("User %d", i))
	}

	var wg sync.WaitGroup
	var joined int32
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			req := httptest.NewRequest("POST", "/api/activities/"+id+"/join", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := app.Test(req, -1)
			if err == nil && resp.StatusCode == fiber.StatusOK {
				atomic.AddInt32(&joined, 1)
			}
		}(token)
	}
	wg.Wait()

	// Two seats next to the author, no matter how many raced.
	if joined > 2 {
		t.Fatalf("joined = %d, want at most 2", joined)
	}
	var count int64
	database.DB.Model(&models.Participant{}).Where("activity_id = ?", id).Count(&count)
	if count > 3 {
		t.Fatalf("ledger rows = %d, membership must never exceed maxPeople", count)
	}
	if count != int64(joined)+1 {
		t.Fatalf("ledger rows = %d, want the author plus %d accepted joins", count, joined)
	}
}
