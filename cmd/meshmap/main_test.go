package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const payload = `{
  "topo": {
    "10.62.5.1": {
      "hostname": "gw-markt", "latitude": 51.48, "longitude": 11.97,
      "llaccuracy": 50, "hna": "0.0.0.0",
      "links": {"l1": {"dest": "10.62.7.3", "type": "olsr", "quality": 0.8}}
    },
    "10.62.7.3": {
      "hostname": "roof", "latitude": 51.49, "longitude": 11.95,
      "llaccuracy": 30, "hna": "10.62.5.1",
      "links": {"l1": {"dest": "10.62.5.1", "type": "olsr", "quality": 0.75}}
    }
  }
}`

func writePayload(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "topo.json")
	if err := os.WriteFile(p, []byte(payload), 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestResolve_Table(t *testing.T) {
	out, err := run(t, "resolve", writePayload(t))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var roof string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "10.62.7.3") {
			roof = line
		}
	}
	if !strings.Contains(roof, "10.62.5.1") || !strings.Contains(roof, "olsr") {
		t.Fatalf("expected roof to resolve to the gateway, got:\n%s", out)
	}
	if !strings.Contains(out, "1 gateways") {
		t.Fatalf("expected stats footer, got:\n%s", out)
	}
}

func TestResolve_JSON(t *testing.T) {
	out, err := run(t, "resolve", "--json", writePayload(t))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var got struct {
		Gateways []string `json:"gateways"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got.Gateways) != 1 || got.Gateways[0] != "10.62.5.1" {
		t.Fatalf("unexpected gateways: %v", got.Gateways)
	}
}

func TestResolve_MissingFile(t *testing.T) {
	if _, err := run(t, "resolve", filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected an error for a missing payload")
	}
}

func TestRender_WritesEachBackend(t *testing.T) {
	p := writePayload(t)
	cases := map[string]string{
		"wgs84":       "FeatureCollection",
		"shapelayer":  "<kml",
		"webmercator": "\x89PNG",
	}
	for backend, marker := range cases {
		t.Run(backend, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "map.out")
			if _, err := run(t, "render", "--backend", backend, "--context", "hna", "--width", "64", "--height", "64", "-o", dst, p); err != nil {
				t.Fatalf("render: %v", err)
			}
			body, err := os.ReadFile(dst)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			if !bytes.Contains(body, []byte(marker)) {
				t.Fatalf("expected %q in %s output", marker, backend)
			}
		})
	}
}

func TestRender_UnknownBackend(t *testing.T) {
	if _, err := run(t, "render", "--backend", "vector-tiles", writePayload(t)); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}
