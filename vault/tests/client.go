package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"docuvault/vault/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

type client struct {
	api chi.Router

	userId      uuid.UUID
	accessToken string
}

type httpTestRequest struct {
	api chi.Router

	method   string
	endpoint string
	headers  map[string]string
	body     io.Reader

	err error
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	req := &httpTestRequest{
		api:      c.api,
		method:   method,
		endpoint: endpoint,
		headers:  map[string]string{},
	}
	if c.accessToken != "" {
		req.headers["Authorization"] = "Bearer " + c.accessToken
	}
	return req
}

func (c *client) get(endpoint string) *httpTestRequest {
	return c.request(http.MethodGet, endpoint)
}

func (c *client) post(endpoint string) *httpTestRequest {
	return c.request(http.MethodPost, endpoint)
}

func (c *client) put(endpoint string) *httpTestRequest {
	return c.request(http.MethodPut, endpoint)
}

func (c *client) delete(endpoint string) *httpTestRequest {
	return c.request(http.MethodDelete, endpoint)
}

func (r *httpTestRequest) Json(body interface{}) *httpTestRequest {
	data, err := json.Marshal(body)
	if err != nil {
		r.err = err
		return r
	}
	r.body = bytes.NewReader(data)
	r.headers["Content-Type"] = "application/json"
	return r
}

// Multipart builds a form body with the given fields plus, if fileName is
// non-empty, a single "file" part holding fileContent.
func (r *httpTestRequest) Multipart(fields map[string]string, fileName string, fileContent []byte) *httpTestRequest {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			r.err = err
			return r
		}
	}

	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			r.err = err
			return r
		}
		if _, err := part.Write(fileContent); err != nil {
			r.err = err
			return r
		}
	}

	if err := writer.Close(); err != nil {
		r.err = err
		return r
	}

	r.body = body
	r.headers["Content-Type"] = writer.FormDataContentType()
	return r
}

func (r *httpTestRequest) send() (*httptest.ResponseRecorder, error) {
	if r.err != nil {
		return nil, r.err
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}

	res := httptest.NewRecorder()
	r.api.ServeHTTP(res, req)
	return res, nil
}

func statusError(res *httptest.ResponseRecorder) error {
	switch res.Code {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ErrBadRequest, res.Body.String())
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrUnauthorized, res.Body.String())
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrForbidden, res.Body.String())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, res.Body.String())
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrConflict, res.Body.String())
	default:
		return fmt.Errorf("unexpected status %d: %v", res.Code, res.Body.String())
	}
}

func (r *httpTestRequest) Do(result interface{}) error {
	res, err := r.send()
	if err != nil {
		return err
	}

	if err := statusError(res); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}

	return nil
}

// DoBytes returns the raw response body, for endpoints that stream file
// content instead of json.
func (r *httpTestRequest) DoBytes() ([]byte, http.Header, error) {
	res, err := r.send()
	if err != nil {
		return nil, nil, err
	}

	if err := statusError(res); err != nil {
		return nil, nil, err
	}

	return res.Body.Bytes(), res.Result().Header, nil
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) register(name, email, password, role string) (loginInfo, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	if role != "" {
		body["role"] = role
	}

	err := c.post("/auth/register").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(info loginInfo) error {
	var res struct {
		AccessToken string            `json:"access_token"`
		User        services.UserInfo `json:"user"`
	}

	err := c.post("/auth/login").Json(info).Do(&res)
	if err != nil {
		return err
	}

	c.accessToken = res.AccessToken
	c.userId = res.User.Id
	return nil
}

func (c *client) me() (services.UserInfo, error) {
	var info services.UserInfo
	err := c.get("/auth/me").Do(&info)
	return info, err
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var infos []services.UserInfo
	err := c.get("/auth/users").Do(&infos)
	return infos, err
}

func (c *client) changeRole(userId uuid.UUID, role string) error {
	return c.post(fmt.Sprintf("/auth/users/%v/role", userId)).
		Json(map[string]string{"role": role}).
		Do(nil)
}

type documentUpload struct {
	fields      map[string]string
	fileName    string
	fileContent []byte
}

func (c *client) createDocument(upload documentUpload) (services.DocumentInfo, error) {
	var info services.DocumentInfo
	err := c.post("/documents/").
		Multipart(upload.fields, upload.fileName, upload.fileContent).
		Do(&info)
	return info, err
}

func (c *client) listDocuments() ([]services.DocumentInfo, error) {
	var infos []services.DocumentInfo
	err := c.get("/documents/").Do(&infos)
	return infos, err
}

func (c *client) getDocument(id uuid.UUID) (services.DocumentInfo, error) {
	var info services.DocumentInfo
	err := c.get(fmt.Sprintf("/documents/%v", id)).Do(&info)
	return info, err
}

func (c *client) updateDocument(id uuid.UUID, upload documentUpload) (services.DocumentInfo, error) {
	var info services.DocumentInfo
	err := c.put(fmt.Sprintf("/documents/%v", id)).
		Multipart(upload.fields, upload.fileName, upload.fileContent).
		Do(&info)
	return info, err
}

func (c *client) deleteDocument(id uuid.UUID) error {
	return c.delete(fmt.Sprintf("/documents/%v", id)).Do(nil)
}

func (c *client) downloadDocument(id uuid.UUID) ([]byte, http.Header, error) {
	return c.get(fmt.Sprintf("/documents/%v/download", id)).DoBytes()
}

func (c *client) getDashboard(dashboardType string) (services.DashboardInfo, error) {
	var info services.DashboardInfo
	err := c.get("/dashboards/" + dashboardType).Do(&info)
	return info, err
}

func (c *client) putDashboard(dashboardType string, data string) error {
	// Send the data bytes verbatim: json.Marshal would compact a
	// RawMessage, but the server stores and returns the exact bytes.
	body := "{}"
	if data != "" {
		body = `{"data": ` + data + `}`
	}
	req := c.put("/dashboards/" + dashboardType)
	req.body = bytes.NewReader([]byte(body))
	req.headers["Content-Type"] = "application/json"
	return req.Do(nil)
}

func (c *client) queryAudit(query string) ([]services.AuditEntryInfo, error) {
	endpoint := "/audit/"
	if query != "" {
		endpoint += "?" + query
	}

	var infos []services.AuditEntryInfo
	err := c.get(endpoint).Do(&infos)
	return infos, err
}
