package google_id_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"time"

	"github.com/cockroachdb/errors/markers"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/server/google_id"
	. "github.com/veedubyou/stemsplit/src/shared/testing"
)

var _ = Describe("FirebaseValidator", func() {
	const projectID = "stemsplit-test"

	var (
		signingKey *rsa.PrivateKey
		validator  google_id.FirebaseValidator
		claims     jwt.MapClaims
	)

	BeforeEach(func() {
		signingKey = ExpectSuccess(rsa.GenerateKey(rand.Reader, 2048))
		validator = google_id.NewFirebaseValidatorWithKeyfunc(projectID, func(*jwt.Token) (any, error) {
			return &signingKey.PublicKey, nil
		})

		claims = jwt.MapClaims{
			"sub":   "firebase-user-id",
			"name":  "Some User",
			"email": "someone@example.com",
			"aud":   projectID,
			"iss":   "https://securetoken.google.com/" + projectID,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
		}
	})

	sign := func(key *rsa.PrivateKey) string {
		return ExpectSuccess(jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key))
	}

	It("accepts a token for the project", func() {
		user := ExpectSuccess(validator.ValidateToken(context.Background(), sign(signingKey)))
		Expect(user).To(Equal(google_id.User{
			UserID: "firebase-user-id",
			Name:   "Some User",
			Email:  "someone@example.com",
		}))
	})

	It("doesn't need a name or email", func() {
		delete(claims, "name")
		delete(claims, "email")

		user := ExpectSuccess(validator.ValidateToken(context.Background(), sign(signingKey)))
		Expect(user.UserID).To(Equal("firebase-user-id"))
	})

	DescribeTable("rejects tokens it can't trust",
		func(tamper func()) {
			tamper()
			_, err := validator.ValidateToken(context.Background(), sign(signingKey))
			Expect(markers.Is(err, google_id.NotValidatedMark)).To(BeTrue())
		},
		Entry("for another project", func() { claims["aud"] = "another-project" }),
		Entry("from another issuer", func() { claims["iss"] = "https://example.com" }),
		Entry("that expired", func() { claims["exp"] = time.Now().Add(-time.Hour).Unix() }),
		Entry("without an expiry", func() { delete(claims, "exp") }),
	)

	It("rejects a token signed by another key", func() {
		otherKey := ExpectSuccess(rsa.GenerateKey(rand.Reader, 2048))

		_, err := validator.ValidateToken(context.Background(), sign(otherKey))
		Expect(markers.Is(err, google_id.NotValidatedMark)).To(BeTrue())
	})

	It("rejects garbage", func() {
		_, err := validator.ValidateToken(context.Background(), "not-a-jwt")
		Expect(markers.Is(err, google_id.NotValidatedMark)).To(BeTrue())
	})

	It("rejects a token without a subject", func() {
		delete(claims, "sub")

		_, err := validator.ValidateToken(context.Background(), sign(signingKey))
		Expect(markers.Is(err, google_id.MalformedClaimsMark)).To(BeTrue())
	})
})
