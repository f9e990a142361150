// Package storage keeps the on-disk copy of a blog.
//
// Each post is written pretty-printed to
// <root>/<blog>/YYYY/MM/DD/<id_string>.json after its volatile members
// (embed_iframe, updated) are removed. A post whose stored copy is equal
// is left alone and counted; a changed post replaces the stored copy,
// which is kept as <file>.bak. Images, and audio or video hosted by
// Tumblr, are mirrored to <post dir>/<id_string>/.
//
// Too many unchanged posts in a row mean the rest of the blog is already
// on disk, and StorePosts returns ErrTooManyEqualPosts.
package storage
