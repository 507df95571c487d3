// Package github is a minimal GitHub REST client covering the two calls a
// pull request review needs: fetching the unified diff and posting a review
// with inline comments.
package github
