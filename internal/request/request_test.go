/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jerry-enebeli/conciliation/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	payload := map[string]string{"startDate": "2024-03-01"}

	reqBuffer, err := request.ToJsonReq(payload)
	require.NoError(t, err)
	expectedJSON, _ := json.Marshal(payload)
	assert.Equal(t, expectedJSON, reqBuffer.Bytes())

	reqBuffer, err = request.ToJsonReq(map[string]interface{}{"key": make(chan int)})
	assert.Error(t, err)
	assert.Nil(t, reqBuffer)
}

func TestPostJSON_Success(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://bank.example/tx",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "2024-03-01", body["startDate"])
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"status": 1})
		})

	var out struct {
		Status int `json:"status"`
	}
	resp, err := request.PostJSON(context.Background(), client, "https://bank.example/tx", map[string]string{"startDate": "2024-03-01"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Status)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestPostJSON_StatusError(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://bank.example/tx",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	_, err := request.PostJSON(context.Background(), client, "https://bank.example/tx", map[string]string{}, nil)
	var statusErr *request.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "maintenance", statusErr.Body)
}

func TestCall_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{malformed json response`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var response map[string]string
	_, err = request.Call(nil, req, &response)
	assert.ErrorContains(t, err, "decoding response")
}

func TestNewClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := request.NewClient(50*time.Millisecond, true)
	_, err := request.PostJSON(context.Background(), client, server.URL, map[string]string{}, nil)
	assert.Error(t, err)
}
