package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testSecret = "test-secret"

func signToken(method jwt.SigningMethod, secret string, c claims) string {
	token, err := jwt.NewWithClaims(method, c).SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return token
}

func validClaims() claims {
	now := time.Now()
	return claims{
		Email: "ada@example.com",
		Name:  "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-abcdef123",
			Issuer:    "receipt-processor",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

var _ = Describe("JWTVerifier", func() {
	var (
		verifier *JWTVerifier
		token    string
		identity *Identity
		err      error
	)

	BeforeEach(func() {
		verifier = NewJWTVerifier(testSecret, "receipt-processor")
		token = signToken(jwt.SigningMethodHS256, testSecret, validClaims())
	})

	JustBeforeEach(func() {
		identity, err = verifier.Verify(context.Background(), token)
	})

	When("the token is valid", func() {
		It("should return the identity", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.UserID).To(Equal("user-abcdef123"))
			Expect(identity.Email).To(Equal("ada@example.com"))
			Expect(identity.Name).To(Equal("Ada"))
			Expect(identity.ExpiresAt).To(BeTemporally("~", time.Now().Add(time.Hour), 2*time.Second))
			Expect(identity.IssuedAt).NotTo(BeZero())
		})
	})

	When("the token is signed with another secret", func() {
		BeforeEach(func() {
			token = signToken(jwt.SigningMethodHS256, "wrong", validClaims())
		})

		It("returns an error", func() {
			Expect(errors.Is(err, jwt.ErrTokenSignatureInvalid)).To(BeTrue())
		})
	})

	When("the token uses another algorithm", func() {
		BeforeEach(func() {
			token = signToken(jwt.SigningMethodHS512, testSecret, validClaims())
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the token has expired", func() {
		BeforeEach(func() {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			token = signToken(jwt.SigningMethodHS256, testSecret, c)
		})

		It("returns an error", func() {
			Expect(errors.Is(err, jwt.ErrTokenExpired)).To(BeTrue())
		})
	})

	When("the token has no expiry", func() {
		BeforeEach(func() {
			c := validClaims()
			c.ExpiresAt = nil
			token = signToken(jwt.SigningMethodHS256, testSecret, c)
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the issuer does not match", func() {
		BeforeEach(func() {
			c := validClaims()
			c.Issuer = "someone-else"
			token = signToken(jwt.SigningMethodHS256, testSecret, c)
		})

		It("returns an error", func() {
			Expect(errors.Is(err, jwt.ErrTokenInvalidIssuer)).To(BeTrue())
		})

		When("no issuer is configured", func() {
			BeforeEach(func() {
				verifier = NewJWTVerifier(testSecret, "")
			})

			It("should accept the token", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	When("the token has no subject", func() {
		BeforeEach(func() {
			c := validClaims()
			c.Subject = ""
			token = signToken(jwt.SigningMethodHS256, testSecret, c)
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("no subject")))
		})
	})

	When("the token is garbage", func() {
		BeforeEach(func() {
			token = "not-a-token"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(identity).To(BeNil())
		})
	})
})

var _ = Describe("bearerToken", func() {
	DescribeTable("header parsing",
		func(header, token, code string) {
			got, err := bearerToken(header)
			if code == "" {
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(token))
				return
			}
			var authErr *AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Code).To(Equal(code))
		},
		Entry("valid", "Bearer abc.def", "abc.def", ""),
		Entry("missing", "", "", CodeMissingAuthHeader),
		Entry("basic auth", "Basic dXNlcjpwYXNz", "", CodeInvalidAuthFormat),
		Entry("empty bearer", "Bearer ", "", CodeInvalidAuthFormat),
	)
})

var _ = Describe("Identity context", func() {
	It("should round trip the identity", func() {
		ctx := WithIdentity(context.Background(), &Identity{UserID: "u"})
		id, ok := IdentityFromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(id.UserID).To(Equal("u"))
	})

	It("should report a missing identity", func() {
		_, ok := IdentityFromContext(context.Background())
		Expect(ok).To(BeFalse())
	})
})
