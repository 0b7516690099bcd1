// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/web"
)

const password = "integration-pass-1"

var _ = Describe("Session lifecycle", func() {
	BeforeEach(func() {
		env.truncate()
		env.register("alice", password)
	})

	It("rotates refresh tokens and rejects the previous one", func() {
		login, err := env.Service.Login(env.ctx, "alice", password)
		Expect(err).NotTo(HaveOccurred())
		r1 := login.Tokens.RefreshToken

		pair, err := env.Service.Refresh(env.ctx, r1)
		Expect(err).NotTo(HaveOccurred())
		r2 := pair.RefreshToken
		Expect(r2).NotTo(Equal(r1))

		_, err = env.Service.Refresh(env.ctx, r1)
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuthentication))

		_, err = env.Service.Refresh(env.ctx, r2)
		Expect(err).NotTo(HaveOccurred())
		_, err = env.Service.Refresh(env.ctx, r2)
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuthentication))
	})

	It("lets exactly one concurrent refresh with the same token succeed", func() {
		login, err := env.Service.Login(env.ctx, "alice", password)
		Expect(err).NotTo(HaveOccurred())

		const racers = 8
		results := make([]error, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, results[i] = env.Service.Refresh(env.ctx, login.Tokens.RefreshToken)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			Expect(auth.KindOf(err)).To(Equal(auth.KindAuthentication))
		}
		Expect(succeeded).To(Equal(1))
	})

	It("revokes the refresh token on logout", func() {
		login, err := env.Service.Login(env.ctx, "alice", password)
		Expect(err).NotTo(HaveOccurred())

		Expect(env.Service.Logout(env.ctx, login.User.ID)).To(Succeed())
		Expect(env.Service.Logout(env.ctx, login.User.ID)).To(Succeed())

		_, err = env.Service.Refresh(env.ctx, login.Tokens.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuthentication))
	})

	It("ends the previous session on a new login", func() {
		first, err := env.Service.Login(env.ctx, "alice", password)
		Expect(err).NotTo(HaveOccurred())
		_, err = env.Service.Login(env.ctx, "alice@example.com", password)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Refresh(env.ctx, first.Tokens.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuthentication))
	})
})

var _ = Describe("HTTP API", func() {
	var handler http.Handler

	BeforeEach(func() {
		env.truncate()
		env.register("alice", password)

		gin.SetMode(gin.TestMode)
		srv, err := web.NewServer(env.Service, web.Config{
			BasePath: "/api/v1/users",
			Cookie:   web.CookieConfig{Secure: true, SameSite: http.SameSiteNoneMode},
			Logger:   env.logger,
		})
		Expect(err).NotTo(HaveOccurred())
		handler = srv.Handler()
	})

	post := func(path string, body any, header http.Header) *httptest.ResponseRecorder {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users"+path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header[k] = v
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("logs in, reads the current user and logs out", func() {
		rec := post("/login", map[string]string{"usernameOrEmail": "alice", "password": password}, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			Data struct {
				AccessToken  string         `json:"accessToken"`
				RefreshToken string         `json:"refreshToken"`
				User         map[string]any `json:"user"`
			} `json:"data"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Data.User).NotTo(HaveKey("passwordHash"))
		Expect(body.Data.AccessToken).NotTo(Equal(body.Data.RefreshToken))

		bearer := http.Header{"Authorization": []string{"Bearer " + body.Data.AccessToken}}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+body.Data.AccessToken)
		me := httptest.NewRecorder()
		handler.ServeHTTP(me, req)
		Expect(me.Code).To(Equal(http.StatusOK))
		Expect(me.Body.String()).To(ContainSubstring(`"username":"alice"`))

		Expect(post("/logout", map[string]string{}, bearer).Code).To(Equal(http.StatusOK))
		Expect(post("/refresh-token", map[string]string{"refreshToken": body.Data.RefreshToken}, nil).Code).
			To(Equal(http.StatusUnauthorized))
	})

	It("answers an unknown user with 404 and a wrong password with 401", func() {
		Expect(post("/login", map[string]string{"username": "nobody", "password": password}, nil).Code).
			To(Equal(http.StatusNotFound))
		Expect(post("/login", map[string]string{"username": "alice", "password": "wrong-password"}, nil).Code).
			To(Equal(http.StatusUnauthorized))
	})

	It("rejects a duplicate registration with 409", func() {
		rec := post("/register", map[string]string{
			"fullName": "Alice Again",
			"username": "Alice",
			"email":    "someone@example.com",
			"password": password,
		}, nil)
		Expect(rec.Code).To(Equal(http.StatusConflict))
	})
})
