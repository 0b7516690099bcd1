// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/vidtube/vidtube/internal/auth"
)

var _ = Describe("UserRepository", func() {
	BeforeEach(func() {
		env.truncate()
	})

	newUser := func(username string) *auth.User {
		u, err := auth.NewUser(username, username+"@example.com", "Test User", "$argon2id$placeholder")
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	Describe("Create", func() {
		It("round-trips a user", func() {
			u := newUser("alice")
			u.WatchHistory = []string{"video-1", "video-2"}
			Expect(env.Users.Create(env.ctx, u)).To(Succeed())

			got, err := env.Users.GetByID(env.ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Username).To(Equal("alice"))
			Expect(got.Email).To(Equal("alice@example.com"))
			Expect(got.PasswordHash).To(Equal(u.PasswordHash))
			Expect(got.RefreshToken).To(BeEmpty())
			Expect(got.WatchHistory).To(Equal([]string{"video-1", "video-2"}))
		})

		It("rejects duplicate usernames and emails case-insensitively", func() {
			Expect(env.Users.Create(env.ctx, newUser("alice"))).To(Succeed())

			dupName := newUser("alice")
			dupName.Email = "other@example.com"
			err := env.Users.Create(env.ctx, dupName)
			Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
			Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))

			dupEmail := newUser("bob")
			dupEmail.Email = "ALICE@example.com"
			err = env.Users.Create(env.ctx, dupEmail)
			Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
		})
	})

	Describe("GetByLogin", func() {
		It("matches username or email ignoring case", func() {
			u := newUser("alice")
			Expect(env.Users.Create(env.ctx, u)).To(Succeed())

			for _, login := range []string{"alice", "ALICE", "alice@example.com", "Alice@Example.COM"} {
				got, err := env.Users.GetByLogin(env.ctx, login)
				Expect(err).NotTo(HaveOccurred(), login)
				Expect(got.ID).To(Equal(u.ID))
			}
		})

		It("reports unknown logins as not found", func() {
			_, err := env.Users.GetByLogin(env.ctx, "nobody")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("UpdateAccount", func() {
		It("changes the login email and keeps it unique", func() {
			alice := newUser("alice")
			Expect(env.Users.Create(env.ctx, alice)).To(Succeed())
			Expect(env.Users.Create(env.ctx, newUser("bob"))).To(Succeed())

			Expect(env.Users.UpdateAccount(env.ctx, alice.ID, "Alice Liddell", "alice@wonderland.example")).To(Succeed())
			got, err := env.Users.GetByLogin(env.ctx, "ALICE@wonderland.example")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(alice.ID))
			Expect(got.FullName).To(Equal("Alice Liddell"))

			err = env.Users.UpdateAccount(env.ctx, alice.ID, "Alice", "BOB@example.com")
			Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
			Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
		})
	})

	Describe("ChangePassword", func() {
		It("replaces the digest and revokes the session together", func() {
			u := newUser("alice")
			Expect(env.Users.Create(env.ctx, u)).To(Succeed())
			Expect(env.Users.SetRefreshToken(env.ctx, u.ID, "r1")).To(Succeed())

			Expect(env.Users.ChangePassword(env.ctx, u.ID, "$argon2id$next")).To(Succeed())
			got, err := env.Users.GetByID(env.ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$next"))
			Expect(got.RefreshToken).To(BeEmpty())
		})
	})

	Describe("refresh token storage", func() {
		var u *auth.User

		BeforeEach(func() {
			u = newUser("alice")
			Expect(env.Users.Create(env.ctx, u)).To(Succeed())
			Expect(env.Users.SetRefreshToken(env.ctx, u.ID, "r1")).To(Succeed())
		})

		It("swaps only when the expected token matches", func() {
			ok, err := env.Users.SwapRefreshToken(env.ctx, u.ID, "wrong", "r2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = env.Users.SwapRefreshToken(env.ctx, u.ID, "r1", "r2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			got, err := env.Users.GetByID(env.ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RefreshToken).To(Equal("r2"))
		})

		It("lets exactly one of many concurrent swaps win", func() {
			const racers = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					ok, err := env.Users.SwapRefreshToken(env.ctx, u.ID, "r1", ulid.Make().String())
					Expect(err).NotTo(HaveOccurred())
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})

		It("clears the token and never matches an empty expectation", func() {
			Expect(env.Users.ClearRefreshToken(env.ctx, u.ID)).To(Succeed())

			got, err := env.Users.GetByID(env.ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RefreshToken).To(BeEmpty())

			ok, err := env.Users.SwapRefreshToken(env.ctx, u.ID, "", "r2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("reports missing users as not found", func() {
			err := env.Users.ClearRefreshToken(env.ctx, ulid.Make())
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})
})
