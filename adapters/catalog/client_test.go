package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestGetCharacter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/characters/7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Write([]byte(`{"code":200,"message":"success","data":{
			"id":7,"name":"林小雨","description":"温柔的大学生",
			"voice_id":"voice-7","user_role_name":"老朋友","is_active":true}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", zap.NewNop())
	character, err := client.GetCharacter(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if character.ID != 7 || character.Name != "林小雨" {
		t.Errorf("unexpected character %+v", character)
	}
	if character.VoiceID != "voice-7" {
		t.Errorf("expected voice-7, got %q", character.VoiceID)
	}
	if character.UserRoleName != "老朋友" {
		t.Errorf("expected user role, got %q", character.UserRoleName)
	}
}

func TestGetCharacterEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":404,"message":"character not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	_, err := client.GetCharacter(context.Background(), 99)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "character not found") {
		t.Errorf("error should carry the backend message: %v", err)
	}
}

func TestRecentPostcards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/postcards" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "1" || q.Get("page_size") != "5" {
			t.Errorf("unexpected paging: %v", q)
		}
		if q.Get("sort_by") != "created_at" || q.Get("sort_order") != "desc" {
			t.Errorf("expected newest-first sorting: %v", q)
		}
		w.Write([]byte(`{"code":200,"message":"success","data":{
			"items":[
				{"id":2,"type":"ai","content":"听到这个真好"},
				{"id":1,"type":"user","content":"今天很开心"}
			],
			"total":2}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", zap.NewNop())
	postcards, err := client.RecentPostcards(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(postcards) != 2 {
		t.Fatalf("expected 2 postcards, got %d", len(postcards))
	}
	if postcards[0].ID != 2 || postcards[0].Content != "听到这个真好" {
		t.Errorf("unexpected first postcard %+v", postcards[0])
	}
}

func TestRecentPostcardsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	_, err := client.RecentPostcards(context.Background(), 5)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code: %v", err)
	}
}
