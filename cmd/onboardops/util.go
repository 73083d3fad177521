package main

import (
	"encoding/base64"
	"time"
)

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
