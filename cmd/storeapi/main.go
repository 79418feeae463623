package main

import "github.com/SevenofThr4wn/HardwareStore/cmd/storeapi/cmd"

func main() {
	cmd.Execute()
}
