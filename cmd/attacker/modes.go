package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// step is one request a mode wants sent, followed by an optional pause.
type step struct {
	method  string
	path    string
	body    any
	headers map[string]string
	pause   time.Duration
}

// mode produces the i-th request for a worker.
type mode func(worker, i int) step

var commonPasswords = []string{
	"password", "123456", "admin", "qwerty", "12345678", "letmein",
	"welcome", "changeme", "secret", "guest", "admin123", "p@ssw0rd",
	"trustno1", "iloveyou", "qwerty123", "password1", "root", "toor",
}

var legitPaths = []string{"/", "/api/data/1", "/api/data/2", "/api/protected", "/api/data/3", "/"}

func modes(target string, client *http.Client) map[string]mode {
	return map[string]mode{
		"legit": func(w, i int) step {
			return step{method: "GET", path: legitPaths[i%len(legitPaths)],
				headers: map[string]string{"User-Agent": "Mozilla/5.0"},
				pause:   time.Duration(500+rand.Intn(1000)) * time.Millisecond}
		},
		"ddos": func(w, i int) step {
			return step{method: "GET", path: "/api/data/1",
				headers: map[string]string{"User-Agent": "AttackerBot/1.0"}}
		},
		"explore": func(w, i int) step {
			return step{method: "GET", path: "/" + pathSegment(i),
				headers: map[string]string{"User-Agent": "Scanner/1.0"}}
		},
		"error": func(w, i int) step {
			return step{method: "POST", path: "/login", body: map[string]any{},
				headers: map[string]string{"User-Agent": "HighErrorAttackerBot/1.0"},
				pause:   time.Duration(50+rand.Intn(200)) * time.Millisecond}
		},
		"bruteforce": func(w, i int) step {
			return step{method: "POST", path: "/login",
				body:    map[string]string{"Name": "admin", "password": commonPasswords[i%len(commonPasswords)]},
				headers: map[string]string{"User-Agent": "BruteForceBot/1.0"},
				pause:   100 * time.Millisecond}
		},
		"spoof": func(w, i int) step {
			return step{method: "GET", path: "/api/data/1",
				headers: map[string]string{
					"User-Agent":      fmt.Sprintf("Agent%d", i),
					"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i%250+1),
					"X-Custom-Header": fmt.Sprintf("Value%d", i),
				},
				pause: 300 * time.Millisecond}
		},
		"hijack": hijack(target, client),
		"burst": func(w, i int) step {
			// alternate slow and fast phases of twenty requests
			pause := 2 * time.Second
			if (i/20)%2 == 1 {
				pause = 20 * time.Millisecond
			}
			return step{method: "POST", path: "/login",
				body:    map[string]string{"Name": "alice", "password": "wonderland"},
				headers: map[string]string{"User-Agent": "SlowerFasterBot/1.0"},
				pause:   pause}
		},
	}
}

// hijack logs in once with valid credentials and then replays tampered
// copies of the issued token against protected routes.
func hijack(target string, client *http.Client) mode {
	token := login(client, target, "alice", "wonderland")
	return func(w, i int) step {
		path := "/api/protected"
		if i%3 == 0 {
			path = "/admin"
		}
		return step{method: "GET", path: path,
			headers: map[string]string{"Authorization": "Bearer " + manipulateToken(token)},
			pause:   200 * time.Millisecond}
	}
}

func login(client *http.Client, target, name, pass string) string {
	body, _ := json.Marshal(map[string]string{"Name": name, "password": pass})
	resp, err := client.Post(target+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Token
}

func manipulateToken(tok string) string {
	if tok == "" {
		return randomString(32)
	}
	switch rand.Intn(4) {
	case 0:
		return tok[:len(tok)/2]
	case 1:
		return tok + randomString(rand.Intn(10)+5)
	case 2:
		return randomString(len(tok))
	default:
		b := []byte(tok)
		b[rand.Intn(len(b))] = byte('a' + rand.Intn(26))
		return string(b)
	}
}

func randomString(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_."
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// pathSegment maps 0, 1, ..., 25, 26 to a, b, ..., z, aa.
func pathSegment(i int) string {
	var sb strings.Builder
	for i++; i > 0; i = (i - 1) / 26 {
		sb.WriteByte(byte('a' + (i-1)%26))
	}
	b := []byte(sb.String())
	for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
	return string(b)
}

func (s step) request(target string) (*http.Request, error) {
	var body io.Reader
	if s.body != nil {
		data, err := json.Marshal(s.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(s.method, target+s.path, body)
	if err != nil {
		return nil, err
	}
	if s.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
