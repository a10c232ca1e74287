// Package archive unpacks submitted ZIP archives into a project folder and packs
// the finished project folder back into a ZIP for delivery.
package archive
