// Package testutil provides an in-memory S3-compatible store for tests.
//
// The server implements just enough of the wire protocol to exercise the
// client: bucket lifecycle, object CRUD, ListObjectsV2 pagination, multipart
// uploads, batch delete, and server-side copy. Signature query parameters
// are accepted and ignored. Knobs on Server inject contract violations
// (missing ETag, failing parts) that a real store would never produce.
package testutil

import (
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Server is a fake object store over httptest.
type Server struct {
	srv *httptest.Server

	mu      sync.Mutex
	buckets map[string]*bucketState

	// Request counters, guarded by mu.
	ListCalls     int
	InitiateCalls int
	PartCalls     int
	CompleteCalls int
	AbortCalls    int

	// FailPartNumber makes the upload of that part number return a 500
	// InternalError. Zero disables the knob.
	FailPartNumber int

	// SuppressETag omits the ETag header from part upload responses.
	SuppressETag bool

	// MaxKeysLimit caps page sizes below the client's request. Zero means
	// the protocol default of 1000.
	MaxKeysLimit int

	// EmptyFirstPage makes the first listing page (the one requested without
	// a continuation token) come back with no entries but a token leading to
	// the real ones. Some stores page by internal shard and legitimately
	// produce such pages.
	EmptyFirstPage bool

	// FailDeleteKeys lists keys whose batch delete fails with AccessDenied
	// instead of removing the object.
	FailDeleteKeys []string
}

type bucketState struct {
	objects map[string]*objectState
	uploads map[string]*uploadState
}

type objectState struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

type uploadState struct {
	key   string
	parts map[int][]byte
}

// NewServer starts a fake store. Callers must Close it.
func NewServer() *Server {
	s := &Server{buckets: make(map[string]*bucketState)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the store endpoint.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// CreateBucket seeds a bucket directly, bypassing the wire protocol.
func (s *Server) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureBucket(name)
}

// PutObject seeds an object directly, bypassing the wire protocol.
func (s *Server) PutObject(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.ensureBucket(bucket)
	b.objects[key] = &objectState{
		data:         append([]byte(nil), data...),
		contentType:  "application/octet-stream",
		lastModified: time.Now().UTC(),
	}
}

// Object returns a stored object's bytes for assertions.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, false
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// UploadCount returns how many multipart uploads are pending in a bucket.
// After a completed or aborted upload it should be zero.
func (s *Server) UploadCount(bucket string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return 0
	}
	return len(b.uploads)
}

func (s *Server) ensureBucket(name string) *bucketState {
	b, ok := s.buckets[name]
	if !ok {
		b = &bucketState{
			objects: make(map[string]*objectState),
			uploads: make(map[string]*uploadState),
		}
		s.buckets[name] = b
	}
	return b
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, key := splitPath(r.URL.Path)
	q := r.URL.Query()

	switch {
	case key == "" && r.Method == http.MethodPut:
		s.createBucket(w, bucket)
	case key == "" && r.Method == http.MethodDelete:
		s.deleteBucket(w, bucket)
	case key == "" && r.Method == http.MethodGet && q.Get("list-type") == "2":
		s.listObjects(w, r, bucket)
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		s.deleteObjects(w, r, bucket)
	case r.Method == http.MethodPost && q.Has("uploads"):
		s.initiateUpload(w, r, bucket, key)
	case r.Method == http.MethodPut && q.Has("partNumber"):
		s.uploadPart(w, r, bucket, key)
	case r.Method == http.MethodPost && q.Has("uploadId"):
		s.completeUpload(w, r, bucket, key)
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		s.abortUpload(w, r, bucket, key)
	case r.Method == http.MethodPut && r.Header.Get("X-Amz-Copy-Source") != "":
		s.copyObject(w, r, bucket, key)
	case r.Method == http.MethodPut:
		s.putObject(w, r, bucket, key)
	case r.Method == http.MethodGet:
		s.getObject(w, bucket, key)
	case r.Method == http.MethodHead:
		s.headObject(w, bucket, key)
	case r.Method == http.MethodDelete:
		s.deleteObject(w, bucket, key)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed", r.URL.Path)
	}
}

func splitPath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	bucket, key, _ = strings.Cut(path, "/")
	return bucket, key
}

func (s *Server) createBucket(w http.ResponseWriter, bucket string) {
	if _, ok := s.buckets[bucket]; ok {
		writeError(w, http.StatusConflict, "BucketAlreadyExists",
			"The requested bucket name is not available.", "/"+bucket)
		return
	}
	s.ensureBucket(bucket)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteBucket(w http.ResponseWriter, bucket string) {
	b, ok := s.buckets[bucket]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchBucket",
			"The specified bucket does not exist.", "/"+bucket)
		return
	}
	if len(b.objects) > 0 {
		writeError(w, http.StatusConflict, "BucketNotEmpty",
			"The bucket you tried to delete is not empty.", "/"+bucket)
		return
	}
	delete(s.buckets, bucket)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bucketOr404(w http.ResponseWriter, bucket string) (*bucketState, bool) {
	b, ok := s.buckets[bucket]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchBucket",
			"The specified bucket does not exist.", "/"+bucket)
		return nil, false
	}
	return b, true
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", "could not read body", "/"+bucket+"/"+key)
		return
	}
	b.objects[key] = &objectState{
		data:         data,
		contentType:  r.Header.Get("Content-Type"),
		lastModified: time.Now().UTC(),
	}
	w.Header().Set("ETag", quotedMD5(data))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, bucket, key string) {
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	obj, ok := b.objects[key]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchKey",
			"The specified key does not exist.", "/"+bucket+"/"+key)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("ETag", quotedMD5(obj.data))
	w.Header().Set("Last-Modified", obj.lastModified.Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

func (s *Server) headObject(w http.ResponseWriter, bucket, key string) {
	b, ok := s.buckets[bucket]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	obj, ok := b.objects[key]
	if !ok {
		// HEAD carries no body, not even an error document.
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("ETag", quotedMD5(obj.data))
	w.Header().Set("Last-Modified", obj.lastModified.Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteObject(w http.ResponseWriter, bucket, key string) {
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	delete(b.objects, key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) copyObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	src := strings.TrimPrefix(r.Header.Get("X-Amz-Copy-Source"), "/")
	srcBucket, srcKey, _ := strings.Cut(src, "/")
	sb, ok := s.buckets[srcBucket]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchBucket",
			"The specified bucket does not exist.", "/"+srcBucket)
		return
	}
	obj, ok := sb.objects[srcKey]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchKey",
			"The specified key does not exist.", "/"+src)
		return
	}
	cp := *obj
	cp.data = append([]byte(nil), obj.data...)
	cp.lastModified = time.Now().UTC()
	b.objects[key] = &cp

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w,
		`<CopyObjectResult><ETag>%s</ETag><LastModified>%s</LastModified></CopyObjectResult>`,
		quotedMD5(cp.data), cp.lastModified.Format(time.RFC3339))
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	s.ListCalls++
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	q := r.URL.Query()
	prefix := q.Get("prefix")

	if s.EmptyFirstPage && q.Get("continuation-token") == "" {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w,
			`<ListBucketResult><Name>%s</Name><Prefix>%s</Prefix><KeyCount>0</KeyCount><IsTruncated>true</IsTruncated><NextContinuationToken>0</NextContinuationToken></ListBucketResult>`,
			bucket, prefix)
		return
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	maxKeys := 1000
	if s.MaxKeysLimit > 0 {
		maxKeys = s.MaxKeysLimit
	}
	if mk := q.Get("max-keys"); mk != "" {
		if n, err := strconv.Atoi(mk); err == nil && n < maxKeys {
			maxKeys = n
		}
	}

	offset := 0
	if tok := q.Get("continuation-token"); tok != "" {
		offset, _ = strconv.Atoi(tok)
	}
	if offset > len(keys) {
		offset = len(keys)
	}
	end := offset + maxKeys
	if end > len(keys) {
		end = len(keys)
	}
	truncated := end < len(keys)

	var sb strings.Builder
	sb.WriteString(`<ListBucketResult>`)
	fmt.Fprintf(&sb, `<Name>%s</Name><Prefix>%s</Prefix><MaxKeys>%d</MaxKeys>`,
		bucket, prefix, maxKeys)
	fmt.Fprintf(&sb, `<KeyCount>%d</KeyCount><IsTruncated>%t</IsTruncated>`,
		end-offset, truncated)
	if truncated {
		fmt.Fprintf(&sb, `<NextContinuationToken>%d</NextContinuationToken>`, end)
	}
	for _, k := range keys[offset:end] {
		obj := b.objects[k]
		fmt.Fprintf(&sb,
			`<Contents><Key>%s</Key><LastModified>%s</LastModified><ETag>&#34;%x&#34;</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			k, obj.lastModified.Format(time.RFC3339), md5.Sum(obj.data), len(obj.data))
	}
	sb.WriteString(`</ListBucketResult>`)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, sb.String())
}

func (s *Server) deleteObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	if r.Header.Get("Content-Md5") == "" {
		writeError(w, http.StatusBadRequest, "InvalidDigest",
			"Content-MD5 is required for this request.", "/"+bucket)
		return
	}

	var req struct {
		XMLName xml.Name `xml:"Delete"`
		Objects []struct {
			Key string `xml:"Key"`
		} `xml:"Object"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML",
			"The XML you provided was not well-formed.", "/"+bucket)
		return
	}

	var sb strings.Builder
	sb.WriteString(`<DeleteResult>`)
	for _, o := range req.Objects {
		if slices.Contains(s.FailDeleteKeys, o.Key) {
			fmt.Fprintf(&sb,
				`<Error><Key>%s</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`,
				o.Key)
			continue
		}
		delete(b.objects, o.Key)
		fmt.Fprintf(&sb, `<Deleted><Key>%s</Key></Deleted>`, o.Key)
	}
	sb.WriteString(`</DeleteResult>`)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, sb.String())
}

func (s *Server) initiateUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.InitiateCalls++
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	id := uuid.NewString()
	b.uploads[id] = &uploadState{key: key, parts: make(map[int][]byte)}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w,
		`<InitiateMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><UploadId>%s</UploadId></InitiateMultipartUploadResult>`,
		bucket, key, id)
}

func (s *Server) uploadOr404(w http.ResponseWriter, b *bucketState, id string) (*uploadState, bool) {
	up, ok := b.uploads[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchUpload",
			"The specified upload does not exist.", id)
		return nil, false
	}
	return up, true
}

func (s *Server) uploadPart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.PartCalls++
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	up, ok := s.uploadOr404(w, b, r.URL.Query().Get("uploadId"))
	if !ok {
		return
	}
	partNum, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil || partNum < 1 || partNum > 10000 {
		writeError(w, http.StatusBadRequest, "InvalidArgument",
			"Part number must be an integer between 1 and 10000.", "/"+bucket+"/"+key)
		return
	}
	if s.FailPartNumber != 0 && partNum == s.FailPartNumber {
		writeError(w, http.StatusInternalServerError, "InternalError",
			"We encountered an internal error.", "/"+bucket+"/"+key)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", "could not read body", "/"+bucket+"/"+key)
		return
	}
	up.parts[partNum] = data

	if !s.SuppressETag {
		w.Header().Set("ETag", quotedMD5(data))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.CompleteCalls++
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	id := r.URL.Query().Get("uploadId")
	up, ok := s.uploadOr404(w, b, id)
	if !ok {
		return
	}

	var req struct {
		XMLName xml.Name `xml:"CompleteMultipartUpload"`
		Parts   []struct {
			PartNumber int    `xml:"PartNumber"`
			ETag       string `xml:"ETag"`
		} `xml:"Part"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML",
			"The XML you provided was not well-formed.", "/"+bucket+"/"+key)
		return
	}

	var data []byte
	prev := 0
	for _, p := range req.Parts {
		if p.PartNumber <= prev {
			writeError(w, http.StatusBadRequest, "InvalidPartOrder",
				"The list of parts was not in ascending order.", "/"+bucket+"/"+key)
			return
		}
		prev = p.PartNumber
		part, ok := up.parts[p.PartNumber]
		if !ok {
			writeError(w, http.StatusBadRequest, "InvalidPart",
				"One or more of the specified parts could not be found.", "/"+bucket+"/"+key)
			return
		}
		data = append(data, part...)
	}

	b.objects[key] = &objectState{
		data:         data,
		contentType:  "application/octet-stream",
		lastModified: time.Now().UTC(),
	}
	delete(b.uploads, id)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w,
		`<CompleteMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><ETag>%s</ETag></CompleteMultipartUploadResult>`,
		bucket, key, quotedMD5(data))
}

func (s *Server) abortUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.AbortCalls++
	b, ok := s.bucketOr404(w, bucket)
	if !ok {
		return
	}
	id := r.URL.Query().Get("uploadId")
	if _, ok := s.uploadOr404(w, b, id); !ok {
		return
	}
	delete(b.uploads, id)
	w.WriteHeader(http.StatusNoContent)
}

func quotedMD5(data []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(data))
}

func writeError(w http.ResponseWriter, status int, code, message, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w,
		`<Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>%s</RequestId></Error>`,
		code, message, resource, uuid.NewString())
}
