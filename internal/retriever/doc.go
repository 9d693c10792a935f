// Package retriever fetches the video attached to a social-media post URL.
//
// It treats the remote provider as opaque: given a post URL it either
// returns one raw byte buffer with its content type, or fails. Direct media
// URLs are fetched as-is; HTML post pages are resolved through their
// og:video (or og:image) meta tags. Retry policy belongs to callers.
package retriever
