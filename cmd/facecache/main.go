// Command facecache builds and inspects the tensor cache offline.
package main

func main() {
	Execute()
}
