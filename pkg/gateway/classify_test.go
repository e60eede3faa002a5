package gateway

import (
	"testing"

	"github.com/playbymail/ottoclient/pkg/apierror"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		path    string
		status  int
		body    string
		kind    apierror.Kind
		message string
	}{
		{
			name:    "message body",
			method:  "POST",
			path:    "/api/login",
			status:  400,
			body:    `{"message":"username is required"}`,
			kind:    apierror.KindValidation,
			message: "username is required",
		},
		{
			name:    "errors list uses first detail",
			method:  "POST",
			path:    "/api/users",
			status:  409,
			body:    `{"errors":[{"title":"username","detail":"already taken"}]}`,
			kind:    apierror.KindValidation,
			message: "already taken",
		},
		{
			name:    "errors list falls back to title",
			method:  "POST",
			path:    "/api/users",
			status:  422,
			body:    `{"errors":[{"title":"handle"}]}`,
			kind:    apierror.KindValidation,
			message: "handle",
		},
		{
			name:    "401 is a failed session check",
			method:  "GET",
			path:    "/api/session",
			status:  401,
			body:    `{"message":"not authenticated"}`,
			kind:    apierror.KindSessionExpired,
			message: "not authenticated",
		},
		{
			name:    "401 without body synthesizes message",
			method:  "GET",
			path:    "/api/session",
			status:  401,
			body:    ``,
			kind:    apierror.KindSessionExpired,
			message: "GET /api/session failed with 401",
		},
		{
			name:    "unparseable 4xx is a server error",
			method:  "PATCH",
			path:    "/api/users/7",
			status:  404,
			body:    `<html>not found</html>`,
			kind:    apierror.KindServer,
			message: "PATCH /api/users/7 failed with 404",
		},
		{
			name:    "5xx keeps the server message",
			method:  "PUT",
			path:    "/api/profile",
			status:  503,
			body:    `{"message":"maintenance window"}`,
			kind:    apierror.KindServer,
			message: "maintenance window",
		},
		{
			name:    "5xx without body synthesizes message",
			method:  "POST",
			path:    "/api/logout",
			status:  500,
			body:    `{}`,
			kind:    apierror.KindServer,
			message: "POST /api/logout failed with 500",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.method, tc.path, tc.status, []byte(tc.body))
			if err.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", err.Kind, tc.kind)
			}
			if err.Status != tc.status {
				t.Errorf("status = %d, want %d", err.Status, tc.status)
			}
			if err.Message != tc.message {
				t.Errorf("message = %q, want %q", err.Message, tc.message)
			}
		})
	}
}
