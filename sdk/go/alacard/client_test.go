package alacard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "meta": map[string]any{"request_id": "req-1"}})
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "localhost:8080"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "https://alacard.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "wss://alacard.example.com/v1/tasks/x/ws", c.wsURL("/v1/tasks/x/ws"))

	c, err = NewClient(Config{BaseURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/v1/tasks/x/ws", c.wsURL("/v1/tasks/x/ws"))
}

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/notebooks/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(w, http.StatusAccepted, GenerateResponse{
			TaskID: "task-1", Status: TaskQueued, EstimatedSeconds: 30,
			StatusURL: "/v1/tasks/task-1", StreamURL: "/v1/tasks/task-1/ws",
		})
	})
	c := newTestClient(t, mux)

	resp, err := c.Generate(context.Background(), GenerateRequest{ModelID: "gpt2", TopicID: "sourdough"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, TaskQueued, resp.Status)
	assert.Equal(t, 30, resp.EstimatedSeconds)
	assert.Equal(t, "gpt2", got.ModelID)
	assert.Equal(t, "sourdough", got.TopicID)
	assert.Nil(t, got.Recipe)
}

func TestErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/notebooks/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INPUT","message":"invalid recipe: unknown topic_id \"x\""}}`))
	})
	mux.HandleFunc("GET /v1/tasks/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})
	c := newTestClient(t, mux)

	_, err := c.Generate(context.Background(), GenerateRequest{ModelID: "gpt2", TopicID: "x"})
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))
	assert.False(t, IsNotFound(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
	assert.Contains(t, apiErr.Message, "unknown topic_id")

	_, err = c.Status(context.Background(), "task-1")
	assert.True(t, IsRateLimited(err))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestStatusAndNotebook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, Task{
			TaskID: r.PathValue("task_id"), State: TaskReady, ProgressPercent: 100,
			DocumentRef: "abcd1234", Warning: "notebook generated but not saved",
		})
	})
	mux.HandleFunc("GET /v1/notebooks/{share_id}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{
			"share_id": r.PathValue("share_id"),
			"model_id": "gpt2",
			"notebook": map[string]any{"nbformat": 4, "cells": []any{}},
			"recipe":   map[string]any{"topic": map[string]any{"id": "general"}},
		})
	})
	c := newTestClient(t, mux)

	task, err := c.Status(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskReady, task.State)
	assert.True(t, task.State.Terminal())
	assert.Equal(t, "abcd1234", task.DocumentRef)
	assert.NotEmpty(t, task.Warning)

	rec, err := c.GetNotebook(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", rec.ShareID)
	assert.JSONEq(t, `{"nbformat":4,"cells":[]}`, string(rec.Notebook))
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/notebooks/{share_id}/download", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("share_id") != "abcd1234" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"notebook not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/x-ipynb+json")
		w.Header().Set("Content-Disposition", `attachment; filename="alacard-gpt2-1700000000.ipynb"`)
		_, _ = w.Write([]byte(`{"nbformat":4}`))
	})
	c := newTestClient(t, mux)

	d, err := c.Download(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "alacard-gpt2-1700000000.ipynb", d.Filename)
	assert.Equal(t, `{"nbformat":4}`, string(d.Content))

	_, err = c.Download(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}

func TestCardsAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/cards/{kind}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []map[string]any{{"id": "general"}, {"id": "sourdough"}})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Storage: "disconnected"})
	})
	c := newTestClient(t, mux)

	cards, err := c.Cards(context.Background(), "topics")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "sourdough", cards[1]["id"])

	_, err = c.Health(context.Background())
	assert.True(t, IsUnavailable(err))
}
