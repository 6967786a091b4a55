// Command pgfs mounts rows of a PostgreSQL table as files in a FUSE
// filesystem.
package main

func main() {
	Execute()
}
