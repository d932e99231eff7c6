package objects

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
)

func TestDecodeEvents(t *testing.T) {
	raw := `{"Records":[
		{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"catalog"},"object":{"key":"uploaded/spring+sale%281%29.csv","size":120}}},
		{"eventName":"s3:ObjectRemoved:Delete","s3":{"bucket":{"name":"catalog"},"object":{"key":"uploaded/old.csv"}}},
		{"eventName":"s3:ObjectCreated:CompleteMultipartUpload","s3":{"bucket":{"name":"catalog"},"object":{"key":"uploaded/big.csv","size":9000}}},
		{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"catalog"},"object":{"key":"uploaded/bad%zz.csv"}}}
	]}`
	var info notification.Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatal(err)
	}

	got := decodeEvents(info)
	want := []Event{
		{Bucket: "catalog", Key: "uploaded/spring sale(1).csv", Size: 120},
		{Bucket: "catalog", Key: "uploaded/big.csv", Size: 9000},
	}
	if len(got) != len(want) {
		t.Fatalf("decodeEvents() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWrap_NotFound(t *testing.T) {
	err := wrap("open", "uploaded/x.csv", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("wrap() = %v, want ErrNotFound", err)
	}

	err = wrap("open", "uploaded/x.csv", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403})
	if errors.Is(err, ErrNotFound) {
		t.Errorf("wrap() = %v, should not be ErrNotFound", err)
	}
}

func TestFromInfo_TrimsETagQuotes(t *testing.T) {
	got := fromInfo(minio.ObjectInfo{Key: "uploaded/a.csv", Size: 10, ETag: `"9b2cf535f27731c974343645a3985328"`})
	if got.ETag != "9b2cf535f27731c974343645a3985328" {
		t.Errorf("ETag = %q", got.ETag)
	}
	if got.Key != "uploaded/a.csv" || got.Size != 10 {
		t.Errorf("fromInfo() = %+v", got)
	}
}
