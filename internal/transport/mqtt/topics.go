package mqtt

import "strings"

// responseKind distinguishes a registration response topic from a plain
// request response topic, mirroring MQTTClientHandler's responseTopicType.
type responseKind string

const (
	responseKindReq responseKind = "resp"
	responseKindReg responseKind = "reg_resp"
)

// requestTopic is a dissected "{prefix}/oneM2M/{req|reg_req}/{from}/{to}/{ct}"
// topic.
type requestTopic struct {
	From        string
	To          string
	ContentType string
}

// parseRequestTopic extracts the originator, target CSE-ID and content
// type from an incoming request topic, given the number of segments the
// configured prefix itself contributes.
func parseRequestTopic(topic string, prefixSegments int) (requestTopic, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != prefixSegments+5 {
		return requestTopic{}, false
	}
	return requestTopic{
		From:        parts[prefixSegments+2],
		To:          parts[prefixSegments+3],
		ContentType: parts[prefixSegments+4],
	}, true
}

func responseTopic(prefix string, kind responseKind, from, to, contentType string) string {
	return prefix + "/oneM2M/" + string(kind) + "/" + from + "/" + to + "/" + contentType
}

func segmentCount(prefix string) int {
	return len(strings.Split(prefix, "/"))
}
