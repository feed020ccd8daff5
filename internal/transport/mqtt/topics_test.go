package mqtt

import "testing"

func TestParseRequestTopic(t *testing.T) {
	cases := []struct {
		name   string
		topic  string
		prefix int
		wantOK bool
		want   requestTopic
	}{
		{
			name:   "well formed request topic",
			topic:  "acme/oneM2M/req/Cmyapp/in-cse/json",
			prefix: 1,
			wantOK: true,
			want:   requestTopic{From: "Cmyapp", To: "in-cse", ContentType: "json"},
		},
		{
			name:   "multi-segment prefix",
			topic:  "a/b/oneM2M/req/Cmyapp/in-cse/json",
			prefix: 2,
			wantOK: true,
			want:   requestTopic{From: "Cmyapp", To: "in-cse", ContentType: "json"},
		},
		{
			name:   "too few segments",
			topic:  "acme/oneM2M/req/Cmyapp",
			prefix: 1,
			wantOK: false,
		},
		{
			name:   "too many segments",
			topic:  "acme/oneM2M/req/Cmyapp/in-cse/json/extra",
			prefix: 1,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseRequestTopic(tc.topic, tc.prefix)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestResponseTopic(t *testing.T) {
	got := responseTopic("acme", responseKindReq, "in-cse", "Cmyapp", "json")
	want := "acme/oneM2M/resp/in-cse/Cmyapp/json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSegmentCount(t *testing.T) {
	if got := segmentCount("acme"); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := segmentCount("a/b/c"); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
