package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
	"github.com/onsi/gomega"
)

type RequestModifier func(r *http.Request)

type RequestModifiers []RequestModifier

func (r *RequestModifiers) Add(mods ...RequestModifier) {
	*r = append(*r, mods...)
}

func WithAuthHeader(header string) RequestModifier {
	return func(request *http.Request) {
		request.Header.Set("Authorization", header)
	}
}

func WithUserCred(user User) RequestModifier {
	return func(request *http.Request) {
		token := TokenForUserID(user.ID)
		request.Header.Set("Authorization", "Bearer "+token)
	}
}

// FormFile is sent as the "file" part of a multipart body.
type FormFile struct {
	Name string
	Data []byte
}

type RequestFactory struct {
	Method  string
	Target  string
	JSONObj interface{}
	File    *FormFile
	Mods    RequestModifiers
}

func (r RequestFactory) make(reqMaker func(string, string, io.Reader) *http.Request) *http.Request {
	var (
		body        io.Reader
		contentType string
	)

	switch {
	case r.File != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		part, err := writer.CreateFormFile("file", r.File.Name)
		gomega.ExpectWithOffset(2, err).NotTo(gomega.HaveOccurred())
		_, err = part.Write(r.File.Data)
		gomega.ExpectWithOffset(2, err).NotTo(gomega.HaveOccurred())
		gomega.ExpectWithOffset(2, writer.Close()).To(gomega.Succeed())

		body = buf
		contentType = writer.FormDataContentType()

	case r.JSONObj != nil:
		buf := &bytes.Buffer{}
		err := json.NewEncoder(buf).Encode(r.JSONObj)
		gomega.ExpectWithOffset(2, err).NotTo(gomega.HaveOccurred())

		body = buf
		contentType = echo.MIMEApplicationJSON
	}

	request := reqMaker(r.Method, r.Target, body)

	if contentType != "" {
		request.Header.Set(echo.HeaderContentType, contentType)
	}

	for _, mod := range r.Mods {
		mod(request)
	}

	return request
}

func (r RequestFactory) MakeFake() *http.Request {
	return r.make(httptest.NewRequest)
}

func (r RequestFactory) Do() (*http.Response, error) {
	makeRealRequest := func(method string, target string, body io.Reader) *http.Request {
		return ExpectSuccess(http.NewRequest(method, target, body))
	}

	req := r.make(makeRealRequest)
	return http.DefaultClient.Do(req)
}
