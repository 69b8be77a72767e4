package main

import "testing"

func stubPasswords(t *testing.T, inputs ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(inputs) {
			t.Fatalf("unexpected extra password prompt")
		}
		pw := inputs[i]
		i++
		return []byte(pw), nil
	}
}

func TestGetPassword_Match(t *testing.T) {
	stubPasswords(t, "hunter22", "hunter22")

	pw, err := getPassword()
	if err != nil {
		t.Fatalf("getPassword error: %v", err)
	}
	if string(pw) != "hunter22" {
		t.Fatalf("unexpected password: %q", pw)
	}
}

func TestGetPassword_Mismatch(t *testing.T) {
	stubPasswords(t, "hunter22", "hunter23")

	if _, err := getPassword(); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestGetPassword_TooShort(t *testing.T) {
	stubPasswords(t, "short", "short")

	if _, err := getPassword(); err == nil {
		t.Fatalf("expected length error")
	}
}
