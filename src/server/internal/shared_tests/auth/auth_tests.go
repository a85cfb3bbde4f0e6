package authtest

import (
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/auth"
	"github.com/veedubyou/stemsplit/src/shared/testing"
)

// to use this shared test, all tests must set the Endpoint in the BeforeEach
// and JSONBody optionally
var (
	Endpoint func(c echo.Context) error
	JSONBody any
)

func ItRejectsUnpermittedRequests(method string, path string) {
	ItRejectsUnauthorizedRequests(method, path)
	ItRejectsWrongOwnerRequests(method, path)
}

func itRespondsWith(method string, path string, setup func(factory *testing.RequestFactory), code api.ErrorCode, status int) {
	var response *httptest.ResponseRecorder

	JustBeforeEach(func() {
		Expect(Endpoint).NotTo(BeNil())

		requestFactory := testing.RequestFactory{
			Method:  method,
			Target:  path,
			JSONObj: JSONBody,
		}
		setup(&requestFactory)

		request := requestFactory.MakeFake()
		response = httptest.NewRecorder()
		c := testing.PrepareEchoContext(request, response)

		err := Endpoint(c)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Endpoint = nil
		JSONBody = nil
	})

	It("fails with the right error code", func() {
		resErr := testing.DecodeJSONError(response.Body)
		Expect(resErr.Code).To(BeEquivalentTo(code))
	})

	It("fails with the right status code", func() {
		Expect(response.Code).To(Equal(status))
	})
}

func ItRejectsWrongOwnerRequests(method string, path string) {
	Describe("For a user that's not the owner of the job", func() {
		itRespondsWith(method, path, func(factory *testing.RequestFactory) {
			factory.Mods.Add(testing.WithUserCred(testing.OtherUser))
		}, auth.WrongOwnerCode, http.StatusForbidden)
	})
}

func ItRejectsUnauthorizedRequests(method string, path string) {
	Describe("Unauthorized requests", func() {
		Describe("With no auth header", func() {
			itRespondsWith(method, path, func(*testing.RequestFactory) {},
				auth.BadAuthorizationHeaderCode, http.StatusBadRequest)
		})

		Describe("With a malformed token", func() {
			itRespondsWith(method, path, func(factory *testing.RequestFactory) {
				token := testing.TokenForUserID(testing.PrimaryUser.ID)
				factory.Mods.Add(testing.WithAuthHeader(token))
			}, auth.BadAuthorizationHeaderCode, http.StatusBadRequest)
		})

		Describe("With a Google unauthorized token", func() {
			itRespondsWith(method, path, func(factory *testing.RequestFactory) {
				factory.Mods.Add(testing.WithUserCred(testing.GoogleUnauthorizedUser))
			}, auth.FailedVerificationCode, http.StatusUnauthorized)
		})
	})
}
