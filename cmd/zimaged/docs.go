package main

// General API documentation for swaggo. Regenerate docs/ with `swag init -g cmd/zimaged/docs.go`.
//
// @title           zimaged API
// @version         1.0
// @description     HTTP API for a local text-to-image daemon: model lifecycle, generation jobs and the image gallery.
//
// @contact.name   zimagetool maintainers
// @contact.url    https://github.com/wenc23/zimagetool
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
