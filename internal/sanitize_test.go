package internal

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"plain function", "pub fn add(a: i32, b: i32) -> i32 { a + b }", false},
		{"collections", "use std::collections::HashMap;\npub fn f() -> HashMap<u8, u8> { HashMap::new() }", false},
		{"relative include", `const DATA: &str = include_str!("data.txt");`, false},
		{"process command", `std::process::Command::new("ls").spawn();`, true},
		{"process import", "use std::process::{exit, Command};", true},
		{"net import", "use std::net::TcpStream;", true},
		{"tcp listener", `let l = TcpListener::bind("0.0.0.0:80");`, true},
		{"absolute include", `const P: &str = include_str!("/etc/passwd");`, true},
		{"raw absolute include", `const P: &[u8] = include_bytes!(r"/etc/shadow");`, true},
		{"parent include", `const P: &str = include_str!("../../secret");`, true},
		{"blank", "   \n\t", true},
		{"nul byte", "fn main() {}\x00", true},
		{"invalid utf8", "fn main() {}\xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SanitizeCode(tt.code, 10000)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeCode(%q): wantErr=%v, got %v", tt.code, tt.wantErr, err)
			}
			if err != nil {
				var se *SanitizationError
				if !errors.As(err, &se) {
					t.Fatalf("expected *SanitizationError, got %T", err)
				}
			}
		})
	}
}

func TestSanitizeCodeLength(t *testing.T) {
	code := strings.Repeat("a", 101)
	err := SanitizeCode(code, 100)
	if err == nil || !strings.Contains(err.Error(), "Max length allowed is 100") {
		t.Fatalf("expected length error, got %v", err)
	}
}
