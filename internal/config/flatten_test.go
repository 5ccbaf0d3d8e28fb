package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"smtp": map[string]any{
			"host": "smtp.example.com",
			"port": 465.0,
		},
		"repo":      map[string]any{},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["smtp.host"] != "smtp.example.com" {
		t.Errorf("expected smtp.host, got %v", got["smtp.host"])
	}
	if got["smtp.port"] != 465.0 {
		t.Errorf("expected smtp.port=465, got %v", got["smtp.port"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys (empty section produces nothing), got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	got := Flatten(map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
	})
	if got["a.b.c"] != "deep" || len(got) != 1 {
		t.Errorf("unexpected flatten result %v", got)
	}
}

func TestUnflatten_RoundTrip(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.genmjp",
		"openai": map[string]any{
			"api_key":      "sk-test123456",
			"assistant_id": "asst_abc",
		},
		"archive": map[string]any{
			"use_ssl": true,
		},
	}

	restored := Unflatten(Flatten(original))
	if restored["data_dir"] != "/home/test/.genmjp" {
		t.Errorf("data_dir mismatch: %v", restored["data_dir"])
	}
	openai, ok := restored["openai"].(map[string]any)
	if !ok {
		t.Fatalf("expected openai to be map, got %T", restored["openai"])
	}
	if openai["assistant_id"] != "asst_abc" {
		t.Errorf("openai.assistant_id mismatch: %v", openai["assistant_id"])
	}
	archive := restored["archive"].(map[string]any)
	if archive["use_ssl"] != true {
		t.Errorf("archive.use_ssl mismatch: %v", archive["use_ssl"])
	}
}

func TestMaskSecrets(t *testing.T) {
	got := MaskSecrets(map[string]any{
		"openai.api_key":     "sk-test123456",
		"smtp.password":      "ab",
		"telegram.token":     "abcd",
		"archive.secret_key": "",
		"smtp.username":      "mailer@example.com",
	})

	want := map[string]any{
		"openai.api_key":     "***3456",
		"smtp.password":      "***ab",
		"telegram.token":     "***abcd",
		"archive.secret_key": "",
		"smtp.username":      "mailer@example.com",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("smtp.password") {
		t.Error("smtp.password should be secret")
	}
	if IsSecretKey("smtp.host") {
		t.Error("smtp.host should not be secret")
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]any{"b": 1, "a": 2, "c.d": 3})
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c.d" {
		t.Errorf("unexpected order %v", keys)
	}
}
